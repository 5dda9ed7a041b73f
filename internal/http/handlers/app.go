// Package handlers implements the HTTP API on top of the campaign, wallet and
// telegram packages.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/yueliao11/Donate-On-Flow/internal/campaign"
	"github.com/yueliao11/Donate-On-Flow/internal/domain"
	"github.com/yueliao11/Donate-On-Flow/internal/metrics"
	"github.com/yueliao11/Donate-On-Flow/internal/middleware"
	"github.com/yueliao11/Donate-On-Flow/internal/providers/ai"
	"github.com/yueliao11/Donate-On-Flow/internal/storage"
	"github.com/yueliao11/Donate-On-Flow/internal/telegram"
	"github.com/yueliao11/Donate-On-Flow/internal/wallet"
)

const maxJSONBody = 1 << 20

type App struct {
	Campaign  *campaign.Service
	Wallets   *wallet.Manager
	Telegram  *telegram.Validator
	AI        ai.Enhancer
	Images    *storage.Images
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	JWTSecret string
	TokenTTL  time.Duration
	Now       func() time.Time
	// Ping reports database health for /v1/healthz. Optional.
	Ping func(ctx context.Context) error
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *App) tokenTTL() time.Duration {
	if a.TokenTTL > 0 {
		return a.TokenTTL
	}
	return 24 * time.Hour
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	middleware.WriteError(w, code, errCode, message)
}

// errorStatus maps domain errors onto HTTP status and API error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrWalletRequired):
		return http.StatusUnauthorized, "wallet_required"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrDuplicateOperation):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrProviderFailure):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}

// fail writes err with its mapped status. Internal errors are logged and
// their message is not exposed.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "internal error"
	}
	a.error(w, status, code, msg)
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, name)
	}
	return id, nil
}

func queryLimit(r *http.Request, fallback, max int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil || n <= 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}

// walletSession returns the caller's active wallet session, or nil when the
// caller has none. Only storage failures are returned as errors.
func (a *App) walletSession(r *http.Request) (*domain.WalletSession, error) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok || claims.SessionID == "" || a.Wallets == nil {
		return nil, nil
	}
	session, err := a.Wallets.Lookup(r.Context(), claims.SessionID)
	if errors.Is(err, domain.ErrWalletRequired) {
		return nil, nil
	}
	return session, err
}
