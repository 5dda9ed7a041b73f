package handlers

import (
	"net/http"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/middleware"
	"github.com/yueliao11/Donate-On-Flow/internal/wallet"
)

type walletResponse struct {
	State     wallet.State `json:"state"`
	Token     string       `json:"token,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

func (a *App) WalletChallenge(w http.ResponseWriter, r *http.Request) {
	ch, err := a.Wallets.Challenge(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"challenge": ch,
		"providers": a.Wallets.Providers(),
	})
}

// WalletConnect verifies a provider proof. On failure the body still carries
// the disconnected state next to the error.
func (a *App) WalletConnect(w http.ResponseWriter, r *http.Request) {
	var req wallet.ConnectRequest
	if !a.decode(w, r, &req) {
		return
	}
	claims, _ := middleware.ClaimsFromContext(r.Context())
	state, session, err := a.Wallets.Connect(r.Context(), req, wallet.Caller{TelegramID: claims.TelegramID})
	if err != nil {
		status, code := errorStatus(err)
		msg := err.Error()
		if status == http.StatusInternalServerError {
			a.Logger.Error().Err(err).Msg("wallet connect failed")
			msg = "internal error"
		}
		a.json(w, status, map[string]any{
			"state": state,
			"error": map[string]string{"code": code, "message": msg},
		})
		return
	}

	if claims.Sub == "" {
		claims.Sub = "wallet:" + session.ID
	}
	claims.SessionID = session.ID
	token, expires, err := middleware.IssueToken(a.JWTSecret, claims, a.tokenTTL(), a.now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, walletResponse{State: state, Token: token, ExpiresAt: &expires})
}

// WalletDisconnect revokes the caller's session and always answers with the
// disconnected shape. Telegram callers get a fresh token without the session.
func (a *App) WalletDisconnect(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	state, err := a.Wallets.Disconnect(r.Context(), claims.SessionID)
	if err != nil {
		a.Logger.Error().Err(err).Str("session_id", claims.SessionID).Msg("wallet disconnect failed")
	}
	resp := walletResponse{State: state}
	if claims.TelegramID != 0 {
		claims.SessionID = ""
		token, expires, err := middleware.IssueToken(a.JWTSecret, claims, a.tokenTTL(), a.now())
		if err == nil {
			resp.Token, resp.ExpiresAt = token, &expires
		}
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) WalletSession(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	a.json(w, http.StatusOK, walletResponse{State: a.Wallets.State(r.Context(), claims.SessionID)})
}
