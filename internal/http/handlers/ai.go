package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/yueliao11/Donate-On-Flow/internal/middleware"
)

const aiTimeout = 45 * time.Second

type enhanceRequest struct {
	Text   string `json:"text"`
	Locale string `json:"locale"`
}

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

func (a *App) AIEnhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Locale == "" {
		req.Locale = middleware.LocaleFromContext(r.Context())
	}
	ctx, cancel := context.WithTimeout(r.Context(), aiTimeout)
	defer cancel()
	res, err := a.AI.EnhanceDescription(ctx, req.Text, req.Locale)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Metrics.AIRequest(res.Provider, "enhance")
	a.json(w, http.StatusOK, res)
}

func (a *App) AITranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if !a.decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), aiTimeout)
	defer cancel()
	res, err := a.AI.Translate(ctx, req.Text, req.TargetLanguage)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Metrics.AIRequest(res.Provider, "translate")
	a.json(w, http.StatusOK, res)
}
