package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the directory domain's Prometheus metrics. Registration is
// against an injected registerer so test suites can use a fresh registry per
// run.
type Metrics struct {
	RatingsSubmitted   prometheus.Counter
	VotesCast          prometheus.Counter
	FlagsFiled         prometheus.Counter
	ReviewsAutoFlagged prometheus.Counter
	SelfActionsDenied  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RatingsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustboard_ratings_submitted_total",
			Help: "Ratings created or updated",
		}),
		VotesCast: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustboard_votes_cast_total",
			Help: "Helpfulness votes cast or changed",
		}),
		FlagsFiled: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustboard_flags_filed_total",
			Help: "Abuse flags filed",
		}),
		ReviewsAutoFlagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustboard_reviews_auto_flagged_total",
			Help: "Reviews auto-moderated after reaching the flag threshold",
		}),
		SelfActionsDenied: factory.NewCounter(prometheus.CounterOpts{
			Name: "trustboard_self_actions_denied_total",
			Help: "Self-rating, self-vote, and self-flag attempts rejected",
		}),
	}
}
