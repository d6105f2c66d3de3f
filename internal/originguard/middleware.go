package originguard

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"trustboard/pkg/httputil"
	"trustboard/pkg/requestcontext"
)

var rejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trustboard_origin_rejected_total",
	Help: "Requests rejected by the origin guard",
})

// Middleware rejects requests whose declared origin fails validation. It must
// be mounted ahead of the rate limiter and of any persistence access.
func Middleware(guard *Guard, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := guard.Validate(r.Header.Get("Origin"), r.Header.Get("Referer")); err != nil {
				rejectedTotal.Inc()
				logger.WarnContext(r.Context(), "origin rejected",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
