// Package ratelimit bounds how many actions of a given kind one identity may
// perform per time window, using fixed-window counters over an injectable
// counter store.
package ratelimit

import "time"

// Action names a rate-limited operation. Each action has an independent
// budget.
type Action string

const (
	ActionListingCreate Action = "listing-create"
	ActionRatingSubmit  Action = "rating-submit"
	ActionVote          Action = "vote"
	ActionFlag          Action = "flag"
	ActionBulkSync      Action = "bulk-sync"
)

// Limit is one action's budget: at most Limit calls per Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimits is the static action table. Values mirror how a single user
// plausibly interacts with the directory; bulk-sync covers the external
// registry synchronization job.
func DefaultLimits() map[Action]Limit {
	return map[Action]Limit{
		ActionListingCreate: {Limit: 5, Window: time.Hour},
		ActionRatingSubmit:  {Limit: 10, Window: time.Hour},
		ActionVote:          {Limit: 60, Window: time.Hour},
		ActionFlag:          {Limit: 20, Window: time.Hour},
		ActionBulkSync:      {Limit: 2, Window: 10 * time.Minute},
	}
}

// Result reports the outcome of a consume attempt.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetIn is the time until the current window closes. Always <= the
	// action's window.
	ResetIn time.Duration
}
