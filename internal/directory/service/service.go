// Package service implements the directory's mutating operations: rating
// submission with aggregate recomputation, helpfulness voting, and abuse
// flagging with auto-moderation. Every mutation runs as one unit of work
// against the store; derived numbers are recomputed inside that unit, never
// incremented across it.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"trustboard/internal/cache"
	"trustboard/internal/directory/metrics"
	"trustboard/internal/directory/models"
	"trustboard/internal/directory/store"
	dErrors "trustboard/pkg/domainerrors"
	"trustboard/pkg/requestcontext"
)

// Invalidator drops cached views after a mutation commits and before the
// response is returned.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...cache.Key) error
}

// AuditTrail receives moderation transitions for the abuse audit trail.
type AuditTrail interface {
	ReviewFlagged(ctx context.Context, reviewID, listingID string, flagCount int)
}

type Service struct {
	store   store.Store
	cache   Invalidator
	audit   AuditTrail
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New constructs the service. audit may be nil when no trail is configured.
func New(st store.Store, inv Invalidator, audit AuditTrail, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		cache:   inv,
		audit:   audit,
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("trustboard/directory"),
	}
}

// CreateListingInput is a request to add a directory entry.
type CreateListingInput struct {
	Name    string
	Source  models.ListingSource
	OwnerID string
}

// CreateListing adds a listing. Duplicate (name, owner) pairs are rejected
// with CONFLICT.
func (s *Service) CreateListing(ctx context.Context, in CreateListingInput) (*models.Listing, error) {
	ctx, span := s.tracer.Start(ctx, "directory.CreateListing")
	defer span.End()

	if in.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "listing name is required")
	}
	if !in.Source.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid listing source %q", in.Source)
	}

	now := requestcontext.Now(ctx)
	listing := &models.Listing{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Source:    in.Source,
		OwnerID:   in.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateListing(ctx, listing); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "listing already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.asDomainError(ctx, err, "create listing")
	}

	s.invalidate(ctx, cache.UserDashboard(in.OwnerID))
	return listing, nil
}

// GetListing returns a listing with its derived statistics.
func (s *Service) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	listing, err := s.store.GetListing(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "listing not found")
		}
		return nil, s.asDomainError(ctx, err, "get listing")
	}
	return listing, nil
}

// GetReview returns a review with its current tallies and status.
func (s *Service) GetReview(ctx context.Context, id string) (*models.Review, error) {
	review, err := s.store.GetReview(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "review not found")
		}
		return nil, s.asDomainError(ctx, err, "get review")
	}
	return review, nil
}

// SubmitRatingInput is a create-or-update rating request.
type SubmitRatingInput struct {
	ListingID  string
	AuthorID   string
	Trust      int
	Usefulness int
	Comment    string
}

// SubmitRating upserts the author's review of a listing and recomputes the
// listing's derived statistics in the same unit of work. A repeat submission
// overwrites scores and text and resets status to approved: a fresh edit is
// treated as new content, reversing any prior flag-driven moderation.
// Returns the review and whether it was newly created.
func (s *Service) SubmitRating(ctx context.Context, in SubmitRatingInput) (*models.Review, bool, error) {
	ctx, span := s.tracer.Start(ctx, "directory.SubmitRating")
	defer span.End()

	if err := models.ValidateScores(in.Trust, in.Usefulness); err != nil {
		return nil, false, err
	}

	now := requestcontext.Now(ctx)
	var (
		review  *models.Review
		created bool
	)
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		listing, err := tx.GetListing(ctx, in.ListingID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "listing not found")
			}
			return err
		}
		if listing.Source == models.SourceUser && listing.OwnerID == in.AuthorID {
			s.metrics.SelfActionsDenied.Inc()
			return dErrors.New(dErrors.CodeForbidden, "you may not rate your own listing")
		}

		existing, err := tx.GetReviewByAuthor(ctx, in.ListingID, in.AuthorID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			created = true
			review = &models.Review{
				ID:        uuid.NewString(),
				ListingID: in.ListingID,
				AuthorID:  in.AuthorID,
				CreatedAt: now,
			}
		case err != nil:
			return err
		default:
			// Tallies carry over: they are derived from vote and flag rows,
			// which a re-submission does not touch.
			copied := *existing
			review = &copied
		}

		review.TrustScore = in.Trust
		review.UsefulnessScore = in.Usefulness
		review.Comment = in.Comment
		review.Status = models.StatusApproved
		review.UpdatedAt = now

		if err := tx.UpsertReview(ctx, review); err != nil {
			return err
		}

		reviews, err := tx.ListReviewsByListing(ctx, in.ListingID)
		if err != nil {
			return err
		}
		return tx.UpdateListingStats(ctx, in.ListingID, models.ComputeStats(reviews, now))
	})
	if err != nil {
		return nil, false, s.asDomainError(ctx, err, "submit rating")
	}

	s.metrics.RatingsSubmitted.Inc()
	s.invalidate(ctx,
		cache.ListingView(in.ListingID),
		cache.ReviewView(review.ID),
		cache.UserDashboard(in.AuthorID),
		cache.UserProfile(in.AuthorID),
	)
	return review, created, nil
}

// CastVote records or changes a voter's helpfulness judgment and recomputes
// both tallies by counting the review's vote rows. Counting instead of
// incrementing makes the tallies immune to drift from repeated flips and
// retried requests.
func (s *Service) CastVote(ctx context.Context, reviewID, voterID string, helpful bool) (helpfulCount, notHelpfulCount int, err error) {
	ctx, span := s.tracer.Start(ctx, "directory.CastVote")
	defer span.End()

	now := requestcontext.Now(ctx)
	var listingID string
	err = s.store.RunInTx(ctx, func(tx store.Tx) error {
		review, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "review not found")
			}
			return err
		}
		if review.AuthorID == voterID {
			s.metrics.SelfActionsDenied.Inc()
			return dErrors.New(dErrors.CodeForbidden, "you may not vote on your own review")
		}
		listingID = review.ListingID

		if err := tx.UpsertVote(ctx, models.Vote{
			ReviewID:  reviewID,
			VoterID:   voterID,
			Helpful:   helpful,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return err
		}

		helpfulCount, notHelpfulCount, err = tx.CountVotes(ctx, reviewID)
		if err != nil {
			return err
		}
		return tx.UpdateReviewTallies(ctx, reviewID, helpfulCount, notHelpfulCount)
	})
	if err != nil {
		return 0, 0, s.asDomainError(ctx, err, "cast vote")
	}

	s.metrics.VotesCast.Inc()
	s.invalidate(ctx,
		cache.ReviewView(reviewID),
		cache.ListingView(listingID),
		cache.UserDashboard(voterID),
	)
	return helpfulCount, notHelpfulCount, nil
}

// FileFlag records an abuse flag, recomputes the distinct-flag count, and
// auto-flags the review when the count reaches the threshold while it is
// still approved. A flagger gets exactly one flag per review; a repeat
// attempt is rejected as ALREADY_FLAGGED whether it is a double click or a
// genuine second try, since the two are indistinguishable here.
func (s *Service) FileFlag(ctx context.Context, reviewID, flaggerID string) (flagCount int, statusChanged bool, err error) {
	ctx, span := s.tracer.Start(ctx, "directory.FileFlag")
	defer span.End()

	now := requestcontext.Now(ctx)
	var listingID string
	err = s.store.RunInTx(ctx, func(tx store.Tx) error {
		review, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "review not found")
			}
			return err
		}
		if review.AuthorID == flaggerID {
			s.metrics.SelfActionsDenied.Inc()
			return dErrors.New(dErrors.CodeForbidden, "you may not flag your own review")
		}
		listingID = review.ListingID

		if err := tx.CreateFlag(ctx, models.Flag{
			ReviewID:  reviewID,
			FlaggerID: flaggerID,
			CreatedAt: now,
		}); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return dErrors.New(dErrors.CodeAlreadyFlagged, "you have already flagged this review")
			}
			return err
		}

		flagCount, err = tx.CountFlags(ctx, reviewID)
		if err != nil {
			return err
		}

		status := review.Status
		if flagCount >= models.FlagThreshold && status == models.StatusApproved {
			status = models.StatusFlagged
			statusChanged = true
		}
		return tx.UpdateReviewModeration(ctx, reviewID, flagCount, status)
	})
	if err != nil {
		return 0, false, s.asDomainError(ctx, err, "file flag")
	}

	s.metrics.FlagsFiled.Inc()
	if statusChanged {
		s.metrics.ReviewsAutoFlagged.Inc()
		if s.audit != nil {
			s.audit.ReviewFlagged(ctx, reviewID, listingID, flagCount)
		}
	}
	s.invalidate(ctx,
		cache.ReviewView(reviewID),
		cache.ListingView(listingID),
	)
	return flagCount, statusChanged, nil
}

// invalidate drops cached views before the response goes out. Failures are
// logged and absorbed: the cache self-heals at TTL and the underlying data is
// already committed.
func (s *Service) invalidate(ctx context.Context, keys ...cache.Key) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logger.ErrorContext(ctx, "cache invalidation failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// asDomainError passes coded errors through and wraps everything else as
// internal, logging the cause.
func (s *Service) asDomainError(ctx context.Context, err error, op string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de
	}
	s.logger.ErrorContext(ctx, op+" failed",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, op+" failed")
}
