// Package audit records abuse-relevant events (auto-moderation transitions,
// rate-limit violations) on an append-only trail for later forensics.
package audit

import "time"

// Kind categorizes an audit event.
type Kind string

const (
	KindReviewFlagged     Kind = "review.flagged"
	KindRateLimitExceeded Kind = "ratelimit.exceeded"
)

// Client describes the requesting agent, parsed from the User-Agent header.
// Coarse by intent: enough to spot scripted abuse, not enough to fingerprint.
type Client struct {
	Browser string `json:"browser,omitempty"`
	OS      string `json:"os,omitempty"`
	Mobile  bool   `json:"mobile,omitempty"`
	Bot     bool   `json:"bot,omitempty"`
}

// Event is one audit trail entry.
type Event struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Actor      string            `json:"actor,omitempty"`
	Subject    string            `json:"subject"`
	Details    map[string]string `json:"details,omitempty"`
	Client     Client            `json:"client"`
	RequestID  string            `json:"requestId,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}
