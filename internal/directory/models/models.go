// Package models defines the directory's record kinds and the pure functions
// over them. Listings carry derived statistics that are always recomputed
// from the current review set, never hand-edited.
package models

import (
	"time"

	dErrors "trustboard/pkg/domainerrors"
)

// ListingSource identifies who created a listing.
type ListingSource string

const (
	SourceOfficial ListingSource = "official"
	SourceUser     ListingSource = "user"
	SourceRegistry ListingSource = "registry"
)

// IsValid reports whether the source is a supported enum value.
func (s ListingSource) IsValid() bool {
	switch s {
	case SourceOfficial, SourceUser, SourceRegistry:
		return true
	}
	return false
}

// ReviewStatus is the moderation state of a review.
type ReviewStatus string

const (
	StatusApproved ReviewStatus = "approved"
	StatusFlagged  ReviewStatus = "flagged"
)

const (
	// ScoreMin and ScoreMax bound each quality dimension.
	ScoreMin = 1
	ScoreMax = 5

	// FlagThreshold is the distinct-flag count at which an approved review
	// is auto-flagged.
	FlagThreshold = 3

	// RecentWindow is the trailing span counted by RecentRatings.
	RecentWindow = 30 * 24 * time.Hour
)

// Listing is a rated directory entry. The stats fields are derived: each is a
// pure function of the listing's current reviews (see ComputeStats).
type Listing struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Source  ListingSource `json:"source"`
	OwnerID string        `json:"ownerId,omitempty"`

	AvgTrust      float64 `json:"avgTrust"`
	AvgUsefulness float64 `json:"avgUsefulness"`
	CombinedScore float64 `json:"combinedScore"`
	TotalRatings  int     `json:"totalRatings"`
	RecentRatings int     `json:"recentRatingsCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Review is one author's rating of a listing, unique per (listing, author).
// The tally fields are derived from Vote and Flag rows.
type Review struct {
	ID              string       `json:"id"`
	ListingID       string       `json:"listingId"`
	AuthorID        string       `json:"authorId"`
	TrustScore      int          `json:"trust"`
	UsefulnessScore int          `json:"usefulness"`
	Comment         string       `json:"comment,omitempty"`
	Status          ReviewStatus `json:"status"`
	HelpfulCount    int          `json:"helpfulCount"`
	NotHelpfulCount int          `json:"notHelpfulCount"`
	FlagCount       int          `json:"flagCount"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// Vote is a voter's helpfulness judgment of a review, unique per
// (review, voter). Repeat votes overwrite Helpful rather than adding rows.
type Vote struct {
	ReviewID  string
	VoterID   string
	Helpful   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Flag is an abuse report on a review, unique per (review, flagger).
// Existence-only: never updated or deleted by this service.
type Flag struct {
	ReviewID  string
	FlaggerID string
	CreatedAt time.Time
}

// ValidateScores checks both quality dimensions against the bounded range.
func ValidateScores(trust, usefulness int) error {
	if trust < ScoreMin || trust > ScoreMax {
		return dErrors.Newf(dErrors.CodeInvalidInput, "trust score must be between %d and %d", ScoreMin, ScoreMax)
	}
	if usefulness < ScoreMin || usefulness > ScoreMax {
		return dErrors.Newf(dErrors.CodeInvalidInput, "usefulness score must be between %d and %d", ScoreMin, ScoreMax)
	}
	return nil
}

// ListingStats is the derived-statistics block of a Listing.
type ListingStats struct {
	AvgTrust      float64
	AvgUsefulness float64
	CombinedScore float64
	TotalRatings  int
	RecentRatings int
}

// ComputeStats aggregates the full review set of a listing. It is the single
// definition of the derived fields: callers persist its output in the same
// unit of work as the review write that changed the set.
func ComputeStats(reviews []Review, now time.Time) ListingStats {
	stats := ListingStats{TotalRatings: len(reviews)}
	if len(reviews) == 0 {
		return stats
	}

	var trustSum, usefulnessSum int
	cutoff := now.Add(-RecentWindow)
	for _, r := range reviews {
		trustSum += r.TrustScore
		usefulnessSum += r.UsefulnessScore
		if r.CreatedAt.After(cutoff) {
			stats.RecentRatings++
		}
	}

	n := float64(len(reviews))
	stats.AvgTrust = float64(trustSum) / n
	stats.AvgUsefulness = float64(usefulnessSum) / n
	stats.CombinedScore = (stats.AvgTrust + stats.AvgUsefulness) / 2
	return stats
}

// Apply copies the derived block onto a listing.
func (l *Listing) Apply(stats ListingStats) {
	l.AvgTrust = stats.AvgTrust
	l.AvgUsefulness = stats.AvgUsefulness
	l.CombinedScore = stats.CombinedScore
	l.TotalRatings = stats.TotalRatings
	l.RecentRatings = stats.RecentRatings
}
