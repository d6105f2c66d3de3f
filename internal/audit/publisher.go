package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"trustboard/pkg/requestcontext"
)

// Sink receives finished events. Swapping sinks is how tests observe the
// trail and how deployments without Kafka still run.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Publisher enriches and emits audit events. Emission is best-effort: a
// failing trail is logged, never surfaced to the client, and never rolls back
// the mutation it describes.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
}

func NewPublisher(sink Sink, logger *slog.Logger) *Publisher {
	return &Publisher{sink: sink, logger: logger}
}

// ReviewFlagged records an auto-moderation transition.
func (p *Publisher) ReviewFlagged(ctx context.Context, reviewID, listingID string, flagCount int) {
	p.emit(ctx, Event{
		Kind:    KindReviewFlagged,
		Subject: reviewID,
		Details: map[string]string{
			"listing_id": listingID,
			"flag_count": strconv.Itoa(flagCount),
		},
	})
}

// RateLimitExceeded records a denied attempt against an action budget.
func (p *Publisher) RateLimitExceeded(ctx context.Context, identity, action string, limit int, window time.Duration) {
	p.emit(ctx, Event{
		Kind:    KindRateLimitExceeded,
		Subject: identity,
		Details: map[string]string{
			"action":         action,
			"limit":          strconv.Itoa(limit),
			"window_seconds": strconv.Itoa(int(window.Seconds())),
		},
	})
}

func (p *Publisher) emit(ctx context.Context, event Event) {
	event.ID = uuid.NewString()
	event.Actor = requestcontext.UserID(ctx)
	event.RequestID = requestcontext.RequestID(ctx)
	event.OccurredAt = requestcontext.Now(ctx)
	event.Client = parseClient(requestcontext.UserAgent(ctx))

	if err := p.sink.Publish(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit publish failed",
			"error", err,
			"kind", string(event.Kind),
			"subject", event.Subject,
		)
	}
}

func parseClient(rawUA string) Client {
	if rawUA == "" {
		return Client{}
	}
	ua := useragent.New(rawUA)
	name, _ := ua.Browser()
	return Client{
		Browser: name,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}
