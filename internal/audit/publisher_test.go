package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustboard/pkg/requestcontext"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const chromeUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func enrichedCtx() context.Context {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithUserID(ctx, "alice")
	ctx = requestcontext.WithRequestID(ctx, "req-123")
	return requestcontext.WithClientMetadata(ctx, "203.0.113.7", chromeUA)
}

func TestReviewFlagged(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink, discard)

	p.ReviewFlagged(enrichedCtx(), "review-1", "listing-1", 3)

	events := sink.Events()
	require.Len(t, events, 1)
	e := events[0]

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, KindReviewFlagged, e.Kind)
	assert.Equal(t, "review-1", e.Subject)
	assert.Equal(t, "listing-1", e.Details["listing_id"])
	assert.Equal(t, "3", e.Details["flag_count"])

	// Context enrichment.
	assert.Equal(t, "alice", e.Actor)
	assert.Equal(t, "req-123", e.RequestID)
	assert.Equal(t, time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC), e.OccurredAt)
	assert.Equal(t, "Chrome", e.Client.Browser)
	assert.False(t, e.Client.Bot)
}

func TestRateLimitExceeded(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink, discard)

	p.RateLimitExceeded(enrichedCtx(), "ip:203.0.113.7", "vote", 60, time.Hour)

	events := sink.Events()
	require.Len(t, events, 1)
	e := events[0]

	assert.Equal(t, KindRateLimitExceeded, e.Kind)
	assert.Equal(t, "ip:203.0.113.7", e.Subject)
	assert.Equal(t, "vote", e.Details["action"])
	assert.Equal(t, "60", e.Details["limit"])
	assert.Equal(t, "3600", e.Details["window_seconds"])
}

func TestEmitWithoutClientMetadata(t *testing.T) {
	sink := NewMemorySink()
	p := NewPublisher(sink, discard)

	p.ReviewFlagged(context.Background(), "review-1", "listing-1", 3)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Actor)
	assert.Equal(t, Client{}, events[0].Client)
	assert.False(t, events[0].OccurredAt.IsZero())
}

type failingSink struct{}

func (failingSink) Publish(context.Context, Event) error {
	return errors.New("broker unavailable")
}

func TestPublishFailureIsAbsorbed(t *testing.T) {
	p := NewPublisher(failingSink{}, discard)

	// Must not panic or surface: the trail is best-effort.
	p.ReviewFlagged(enrichedCtx(), "review-1", "listing-1", 3)
}
