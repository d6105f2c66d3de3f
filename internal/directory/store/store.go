// Package store defines the directory persistence contract and its
// implementations. Stores are interface-driven so the domain services stay
// testable and the in-memory, Postgres, or a future implementation can be
// swapped without rewiring business code.
package store

import (
	"context"
	"errors"

	"trustboard/internal/directory/models"
)

// Sentinel errors for infrastructure facts. Services translate these into
// domain errors; stores return them optionally wrapped.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Tx is the scoped transactional handle handed to a unit of work. Every
// mutation inside RunInTx commits together or not at all, which is what keeps
// a vote from persisting without its recomputed tallies, or a flag without
// its recomputed count and status.
type Tx interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	// CreateListing returns ErrConflict when (name, owner) already exists.
	CreateListing(ctx context.Context, listing *models.Listing) error
	UpdateListingStats(ctx context.Context, listingID string, stats models.ListingStats) error

	GetReview(ctx context.Context, id string) (*models.Review, error)
	GetReviewByAuthor(ctx context.Context, listingID, authorID string) (*models.Review, error)
	ListReviewsByListing(ctx context.Context, listingID string) ([]models.Review, error)
	UpsertReview(ctx context.Context, review *models.Review) error
	UpdateReviewTallies(ctx context.Context, reviewID string, helpful, notHelpful int) error
	UpdateReviewModeration(ctx context.Context, reviewID string, flagCount int, status models.ReviewStatus) error

	UpsertVote(ctx context.Context, vote models.Vote) error
	// CountVotes groups the review's votes by their helpful bit and counts
	// each group. Tallies are always recomputed this way, never incremented.
	CountVotes(ctx context.Context, reviewID string) (helpful, notHelpful int, err error)

	// CreateFlag returns ErrConflict when (review, flagger) already exists.
	CreateFlag(ctx context.Context, flag models.Flag) error
	CountFlags(ctx context.Context, reviewID string) (int, error)
}

// Store is the full persistence capability: plain reads plus the
// transactional unit of work.
type Store interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	GetReview(ctx context.Context, id string) (*models.Review, error)

	// RunInTx runs fn against a scoped handle, committing only when fn
	// returns nil and rolling back entirely on any error.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}
