// Package httpapi assembles the chi router for the public API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/yueliao11/Donate-On-Flow/internal/http/handlers"
	"github.com/yueliao11/Donate-On-Flow/internal/middleware"
)

type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// StaticDir serves locally stored uploads under /static when set.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(app.Logger, app.Metrics),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		r.Use(middleware.OptionalAuth(opts.JWTSecret))

		r.Post("/auth/telegram", app.AuthTelegram)

		r.Route("/wallet", func(r chi.Router) {
			r.Post("/challenge", app.WalletChallenge)
			r.Post("/connect", app.WalletConnect)
			r.Post("/disconnect", app.WalletDisconnect)
			r.Get("/session", app.WalletSession)
		})

		r.Get("/projects", app.ListProjects)
		r.Get("/projects/{id}", app.GetProject)
		r.Get("/projects/{id}/milestones", app.ListMilestones)
		r.Get("/milestones/{id}/votes", app.ListMilestoneVotes)
		r.Get("/projects/{id}/donations", app.ListDonations)
		r.Get("/projects/{id}/export", app.ProjectExport)
		r.Get("/donors/{address}/donations", app.ListDonorDonations)
		r.Get("/leaderboard", app.Leaderboard)
		r.Get("/stats", app.Stats)

		// Wallet-bound writes. The campaign service rejects callers without an
		// active wallet session.
		r.Post("/projects", app.CreateProject)
		r.Put("/projects/{id}/status", app.UpdateProjectStatus)
		r.Post("/projects/{id}/milestones", app.AddMilestone)
		r.Put("/milestones/{id}/status", app.UpdateMilestoneStatus)
		r.Post("/milestones/{id}/votes", app.CastMilestoneVote)
		r.Post("/projects/{id}/donations", app.CreateDonation)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(opts.JWTSecret))
			r.Post("/ai/enhance", app.AIEnhance)
			r.Post("/ai/translate", app.AITranslate)
			r.Post("/media/images", app.UploadImage)
		})
	})

	return r
}
