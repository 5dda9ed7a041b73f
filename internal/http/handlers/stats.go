package handlers

import (
	"net/http"
	"strings"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

func (a *App) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Campaign.Summary(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, stats)
}

func (a *App) Leaderboard(w http.ResponseWriter, r *http.Request) {
	tf := domain.Timeframe(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("timeframe"))))
	if tf == "" {
		tf = domain.TimeframeAll
	}
	entries, err := a.Campaign.Leaderboard(r.Context(), tf, queryLimit(r, 10, 100))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	a.json(w, http.StatusOK, map[string]any{"timeframe": tf, "items": entries})
}
