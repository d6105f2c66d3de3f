// Package middleware exposes the rate limiter as chi middleware with the
// X-RateLimit response header contract.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"trustboard/internal/ratelimit"
	dErrors "trustboard/pkg/domainerrors"
	"trustboard/pkg/httputil"
	"trustboard/pkg/requestcontext"
)

var (
	allowedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustboard_ratelimit_allowed_total",
		Help: "Requests passed by the rate limiter",
	}, []string{"action"})
	deniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trustboard_ratelimit_denied_total",
		Help: "Requests denied by the rate limiter",
	}, []string{"action"})
)

// ViolationRecorder receives denied attempts for the abuse audit trail.
type ViolationRecorder interface {
	RateLimitExceeded(ctx context.Context, identity string, action string, limit int, window time.Duration)
}

type Middleware struct {
	limiter  *ratelimit.Limiter
	limits   map[ratelimit.Action]ratelimit.Limit
	logger   *slog.Logger
	recorder ViolationRecorder
}

// New builds the middleware. recorder may be nil when no audit trail is
// configured.
func New(limiter *ratelimit.Limiter, limits map[ratelimit.Action]ratelimit.Limit, logger *slog.Logger, recorder ViolationRecorder) *Middleware {
	return &Middleware{limiter: limiter, limits: limits, logger: logger, recorder: recorder}
}

// Limit consumes one unit of the identity's budget for action. The identity
// key is the authenticated user when present, otherwise the normalized client
// address. Mounted after the origin guard so forged requests never reach the
// counters.
func (m *Middleware) Limit(action ratelimit.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity := requestcontext.UserID(ctx)
			if identity == "" {
				identity = "ip:" + requestcontext.ClientIP(ctx)
			}

			result, err := m.limiter.CheckAndConsume(ctx, identity, action)
			if err != nil {
				// Fail open: flooding defense must not take the API down
				// with it when the counter store is unreachable.
				m.logger.ErrorContext(ctx, "rate limit check failed",
					"error", err,
					"action", string(action),
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addHeaders(w, result)

			if !result.Allowed {
				deniedTotal.WithLabelValues(string(action)).Inc()
				if m.recorder != nil {
					cfg := m.limits[action]
					m.recorder.RateLimitExceeded(ctx, identity, string(action), cfg.Limit, cfg.Window)
				}
				w.Header().Set("Retry-After", strconv.Itoa(ceilSeconds(result.ResetIn)))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
				return
			}

			allowedTotal.WithLabelValues(string(action)).Inc()
			next.ServeHTTP(w, r)
		})
	}
}

func addHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(result.ResetIn)))
}

func ceilSeconds(d time.Duration) int {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
