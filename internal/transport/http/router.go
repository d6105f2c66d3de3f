// Package httptransport assembles the public router. The middleware order on
// mutating routes is a correctness requirement, not a preference: the origin
// guard runs before identity resolution and before the rate limiter, so a
// forged request is rejected without consuming the victim's rate-limit budget
// and without touching persistence.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trustboard/internal/directory/handler"
	"trustboard/internal/originguard"
	"trustboard/internal/platform/middleware/auth"
	"trustboard/internal/platform/middleware/metadata"
	"trustboard/internal/ratelimit"
	rlmiddleware "trustboard/internal/ratelimit/middleware"
)

// Deps carries everything the router wires together.
type Deps struct {
	Logger    *slog.Logger
	Guard     *originguard.Guard
	Verifier  auth.Verifier
	RateLimit *rlmiddleware.Middleware
	Directory *handler.Handler
	// Proxies gates X-Forwarded-For handling; nil trusts no proxy.
	Proxies *metadata.TrustedProxies
	// Health reports backend reachability; nil means always healthy.
	Health func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(metadata.Middleware(d.Proxies))

	r.Get("/healthz", healthHandler(d.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/listings/{listingID}", d.Directory.GetListing)
		r.Get("/reviews/{reviewID}", d.Directory.GetReview)

		// Mutations: guard, then identity, then per-action budget.
		r.Group(func(r chi.Router) {
			r.Use(originguard.Middleware(d.Guard, d.Logger))
			r.Use(auth.RequireAuth(d.Verifier, d.Logger))

			r.With(d.RateLimit.Limit(ratelimit.ActionListingCreate)).
				Post("/listings", d.Directory.CreateListing)
			r.With(d.RateLimit.Limit(ratelimit.ActionRatingSubmit)).
				Post("/listings/{listingID}/reviews", d.Directory.SubmitRating)
			r.With(d.RateLimit.Limit(ratelimit.ActionVote)).
				Post("/reviews/{reviewID}/votes", d.Directory.CastVote)
			r.With(d.RateLimit.Limit(ratelimit.ActionFlag)).
				Post("/reviews/{reviewID}/flags", d.Directory.FileFlag)
		})
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
