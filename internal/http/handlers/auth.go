package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/middleware"
	"github.com/yueliao11/Donate-On-Flow/internal/telegram"
)

type telegramAuthRequest struct {
	InitData string `json:"init_data"`
}

type telegramAuthResponse struct {
	Valid      bool           `json:"valid"`
	Token      string         `json:"token"`
	ExpiresAt  time.Time      `json:"expires_at"`
	User       *telegram.User `json:"user,omitempty"`
	StartParam string         `json:"start_param,omitempty"`
	Mode       string         `json:"mode"`
}

// telegramError maps validation failures to a status and code. The result
// label feeds the auth metric.
func telegramError(err error) (int, string) {
	switch {
	case errors.Is(err, telegram.ErrMissingHash):
		return http.StatusUnauthorized, "init_data_unsigned"
	case errors.Is(err, telegram.ErrSignatureInvalid):
		return http.StatusUnauthorized, "init_data_invalid"
	case errors.Is(err, telegram.ErrExpired):
		return http.StatusUnauthorized, "init_data_expired"
	case errors.Is(err, telegram.ErrMalformed):
		return http.StatusBadRequest, "init_data_malformed"
	}
	return http.StatusInternalServerError, "internal"
}

// AuthTelegram exchanges Mini App init data for a session token. The init
// data may come in the body or the X-Telegram-Init-Data header.
func (a *App) AuthTelegram(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.Header.Get("X-Telegram-Init-Data"))
	if raw == "" {
		var req telegramAuthRequest
		if !a.decode(w, r, &req) {
			return
		}
		raw = req.InitData
	}
	if a.Telegram == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "telegram auth not configured")
		return
	}
	data, err := a.Telegram.Validate(raw)
	if err != nil {
		status, code := telegramError(err)
		a.Metrics.TelegramAuth(code)
		a.Logger.Warn().Err(err).Str("request_id", middleware.RequestIDFromContext(r.Context())).Msg("telegram init data rejected")
		a.json(w, status, map[string]any{
			"valid": false,
			"error": map[string]string{"code": code, "message": err.Error()},
		})
		return
	}
	if data.User == nil {
		a.Metrics.TelegramAuth("init_data_malformed")
		a.json(w, http.StatusBadRequest, map[string]any{
			"valid": false,
			"error": map[string]string{"code": "init_data_malformed", "message": "init data carries no user"},
		})
		return
	}
	a.Metrics.TelegramAuth("ok")

	claims := middleware.TokenClaims{
		Sub:        "tg:" + strconv.FormatInt(data.User.ID, 10),
		TelegramID: data.User.ID,
		Username:   data.User.Username,
		Locale:     middleware.LocaleFromContext(r.Context()),
	}
	// Keep an already linked wallet when the mini-app re-authenticates.
	if prev, ok := middleware.ClaimsFromContext(r.Context()); ok && prev.TelegramID == data.User.ID {
		claims.SessionID = prev.SessionID
	}
	token, expires, err := middleware.IssueToken(a.JWTSecret, claims, a.tokenTTL(), a.now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, telegramAuthResponse{
		Valid:      true,
		Token:      token,
		ExpiresAt:  expires,
		User:       data.User,
		StartParam: data.StartParam,
		Mode:       data.Mode,
	})
}
