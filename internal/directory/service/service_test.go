package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"trustboard/internal/audit"
	"trustboard/internal/cache"
	"trustboard/internal/directory/metrics"
	"trustboard/internal/directory/models"
	"trustboard/internal/directory/service"
	"trustboard/internal/directory/store"
	dErrors "trustboard/pkg/domainerrors"
	"trustboard/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite

	svc   *service.Service
	store *store.MemoryStore
	inv   *cache.MemoryInvalidator
	sink  *audit.MemorySink
	now   time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = store.NewMemory()
	s.inv = cache.NewMemory()
	s.sink = audit.NewMemorySink()
	s.now = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.svc = service.New(s.store, s.inv, audit.NewPublisher(s.sink, logger), metrics.New(prometheus.NewRegistry()), logger)
}

func (s *ServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) createListing(name string, source models.ListingSource, ownerID string) *models.Listing {
	listing, err := s.svc.CreateListing(s.ctx(), service.CreateListingInput{
		Name: name, Source: source, OwnerID: ownerID,
	})
	s.Require().NoError(err)
	return listing
}

func (s *ServiceSuite) submit(listingID, authorID string, trust, usefulness int) *models.Review {
	review, _, err := s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
		ListingID: listingID, AuthorID: authorID, Trust: trust, Usefulness: usefulness,
	})
	s.Require().NoError(err)
	return review
}

func (s *ServiceSuite) deletedKeys() map[string]bool {
	keys := make(map[string]bool)
	for _, k := range s.inv.Deleted() {
		keys[k.String()] = true
	}
	return keys
}

// --- CreateListing ---

func (s *ServiceSuite) TestCreateListing() {
	listing := s.createListing("alpha-directory", models.SourceOfficial, "")

	s.NotEmpty(listing.ID)
	s.Equal("alpha-directory", listing.Name)
	s.Zero(listing.TotalRatings)

	got, err := s.svc.GetListing(s.ctx(), listing.ID)
	s.Require().NoError(err)
	s.Equal(listing.ID, got.ID)
}

func (s *ServiceSuite) TestCreateListingDuplicateConflict() {
	s.createListing("alpha", models.SourceUser, "owner-1")

	_, err := s.svc.CreateListing(s.ctx(), service.CreateListingInput{
		Name: "alpha", Source: models.SourceUser, OwnerID: "owner-1",
	})
	s.Require().Error(err)
	s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestCreateListingValidation() {
	_, err := s.svc.CreateListing(s.ctx(), service.CreateListingInput{Name: "", Source: models.SourceUser})
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))

	_, err = s.svc.CreateListing(s.ctx(), service.CreateListingInput{Name: "x", Source: "bogus"})
	s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
}

// --- SubmitRating ---

func (s *ServiceSuite) TestSubmitRatingRecomputesAggregates() {
	listing := s.createListing("alpha", models.SourceOfficial, "")

	_, created, err := s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
		ListingID: listing.ID, AuthorID: "alice", Trust: 4, Usefulness: 5,
	})
	s.Require().NoError(err)
	s.True(created)

	got, err := s.svc.GetListing(s.ctx(), listing.ID)
	s.Require().NoError(err)
	s.Equal(4.0, got.AvgTrust)
	s.Equal(5.0, got.AvgUsefulness)
	s.Equal(4.5, got.CombinedScore)
	s.Equal(1, got.TotalRatings)
	s.Equal(1, got.RecentRatings)

	_, created, err = s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
		ListingID: listing.ID, AuthorID: "bob", Trust: 2, Usefulness: 3,
	})
	s.Require().NoError(err)
	s.True(created)

	got, err = s.svc.GetListing(s.ctx(), listing.ID)
	s.Require().NoError(err)
	s.Equal(3.0, got.AvgTrust)
	s.Equal(4.0, got.AvgUsefulness)
	s.Equal(3.5, got.CombinedScore)
	s.Equal(2, got.TotalRatings)
	s.Equal(2, got.RecentRatings)
}

func (s *ServiceSuite) TestSubmitRatingRepeatOverwrites() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	first := s.submit(listing.ID, "alice", 2, 2)

	second, created, err := s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
		ListingID: listing.ID, AuthorID: "alice", Trust: 5, Usefulness: 5, Comment: "revised",
	})
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.ID, second.ID)

	got, err := s.svc.GetListing(s.ctx(), listing.ID)
	s.Require().NoError(err)
	s.Equal(1, got.TotalRatings, "overwrite must not add a rating")
	s.Equal(5.0, got.CombinedScore)
}

func (s *ServiceSuite) TestSubmitRatingCarriesTalliesAcrossEdits() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	_, _, err := s.svc.CastVote(s.ctx(), review.ID, "bob", true)
	s.Require().NoError(err)

	updated, _, err := s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
		ListingID: listing.ID, AuthorID: "alice", Trust: 4, Usefulness: 4,
	})
	s.Require().NoError(err)
	s.Equal(1, updated.HelpfulCount, "votes survive a rating edit")
}

func (s *ServiceSuite) TestSubmitRatingSelfRatingForbidden() {
	listing := s.createListing("mine", models.SourceUser, "alice")

	_, _, err := s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
		ListingID: listing.ID, AuthorID: "alice", Trust: 5, Usefulness: 5,
	})
	s.Require().Error(err)
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))

	// Official listings have no owner relationship to enforce.
	official := s.createListing("theirs", models.SourceOfficial, "alice")
	_, _, err = s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
		ListingID: official.ID, AuthorID: "alice", Trust: 5, Usefulness: 5,
	})
	s.NoError(err)
}

func (s *ServiceSuite) TestSubmitRatingUnknownListing() {
	_, _, err := s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
		ListingID: "missing", AuthorID: "alice", Trust: 3, Usefulness: 3,
	})
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestSubmitRatingScoreBounds() {
	listing := s.createListing("alpha", models.SourceOfficial, "")

	for _, pair := range [][2]int{{0, 3}, {6, 3}, {3, 0}, {3, 6}} {
		_, _, err := s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
			ListingID: listing.ID, AuthorID: "alice", Trust: pair[0], Usefulness: pair[1],
		})
		s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err), "scores %v", pair)
	}
}

func (s *ServiceSuite) TestSubmitRatingInvalidates() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 4, 4)

	keys := s.deletedKeys()
	s.True(keys[cache.ListingView(listing.ID).String()])
	s.True(keys[cache.ReviewView(review.ID).String()])
	s.True(keys[cache.UserDashboard("alice").String()])
	s.True(keys[cache.UserProfile("alice").String()])
}

// --- CastVote ---

func (s *ServiceSuite) TestCastVoteTalliesMatchVoterCount() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	voters := []struct {
		id      string
		helpful bool
	}{
		{"bob", true}, {"carol", true}, {"dave", false},
	}
	var helpful, notHelpful int
	var err error
	for _, v := range voters {
		helpful, notHelpful, err = s.svc.CastVote(s.ctx(), review.ID, v.id, v.helpful)
		s.Require().NoError(err)
	}

	s.Equal(2, helpful)
	s.Equal(1, notHelpful)
	s.Equal(len(voters), helpful+notHelpful, "tally sum equals distinct voters")

	got, err := s.svc.GetReview(s.ctx(), review.ID)
	s.Require().NoError(err)
	s.Equal(2, got.HelpfulCount)
	s.Equal(1, got.NotHelpfulCount)
}

func (s *ServiceSuite) TestCastVoteFlipMovesOneUnit() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	helpful, notHelpful, err := s.svc.CastVote(s.ctx(), review.ID, "bob", true)
	s.Require().NoError(err)
	s.Equal(1, helpful)
	s.Equal(0, notHelpful)

	helpful, notHelpful, err = s.svc.CastVote(s.ctx(), review.ID, "carol", false)
	s.Require().NoError(err)
	s.Equal(1, helpful)
	s.Equal(1, notHelpful)

	// Bob flips: one unit moves, the sum stays put.
	helpful, notHelpful, err = s.svc.CastVote(s.ctx(), review.ID, "bob", false)
	s.Require().NoError(err)
	s.Equal(0, helpful)
	s.Equal(2, notHelpful)
}

func (s *ServiceSuite) TestCastVoteRepeatSameDirectionIsIdempotent() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	for i := 0; i < 3; i++ {
		helpful, notHelpful, err := s.svc.CastVote(s.ctx(), review.ID, "bob", true)
		s.Require().NoError(err)
		s.Equal(1, helpful)
		s.Equal(0, notHelpful)
	}
}

func (s *ServiceSuite) TestCastVoteSelfVoteForbidden() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	_, _, err := s.svc.CastVote(s.ctx(), review.ID, "alice", true)
	s.Require().Error(err)
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))

	got, err := s.svc.GetReview(s.ctx(), review.ID)
	s.Require().NoError(err)
	s.Zero(got.HelpfulCount)
}

func (s *ServiceSuite) TestCastVoteUnknownReview() {
	_, _, err := s.svc.CastVote(s.ctx(), "missing", "bob", true)
	s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
}

// --- FileFlag ---

func (s *ServiceSuite) TestFileFlagThreshold() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	count, changed, err := s.svc.FileFlag(s.ctx(), review.ID, "f1")
	s.Require().NoError(err)
	s.Equal(1, count)
	s.False(changed)

	count, changed, err = s.svc.FileFlag(s.ctx(), review.ID, "f2")
	s.Require().NoError(err)
	s.Equal(2, count)
	s.False(changed)

	got, err := s.svc.GetReview(s.ctx(), review.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, got.Status, "still approved below threshold")

	count, changed, err = s.svc.FileFlag(s.ctx(), review.ID, "f3")
	s.Require().NoError(err)
	s.Equal(3, count)
	s.True(changed, "third distinct flag crosses the threshold")

	got, err = s.svc.GetReview(s.ctx(), review.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFlagged, got.Status)

	// A fourth flag still counts but changes nothing.
	count, changed, err = s.svc.FileFlag(s.ctx(), review.ID, "f4")
	s.Require().NoError(err)
	s.Equal(4, count)
	s.False(changed)
}

func (s *ServiceSuite) TestFileFlagRepeatRejected() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	_, _, err := s.svc.FileFlag(s.ctx(), review.ID, "f1")
	s.Require().NoError(err)

	_, _, err = s.svc.FileFlag(s.ctx(), review.ID, "f1")
	s.Require().Error(err)
	s.Equal(dErrors.CodeAlreadyFlagged, dErrors.CodeOf(err))

	got, err := s.svc.GetReview(s.ctx(), review.ID)
	s.Require().NoError(err)
	s.Equal(1, got.FlagCount, "rejected repeat must not move the count")
}

func (s *ServiceSuite) TestFileFlagRepeatRejectedEvenWhenFlagged() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	for _, f := range []string{"f1", "f2", "f3"} {
		_, _, err := s.svc.FileFlag(s.ctx(), review.ID, f)
		s.Require().NoError(err)
	}

	_, _, err := s.svc.FileFlag(s.ctx(), review.ID, "f1")
	s.Equal(dErrors.CodeAlreadyFlagged, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestFileFlagSelfFlagForbidden() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	_, _, err := s.svc.FileFlag(s.ctx(), review.ID, "alice")
	s.Equal(dErrors.CodeForbidden, dErrors.CodeOf(err))
}

func (s *ServiceSuite) TestFileFlagEmitsAuditEventOnTransition() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	for _, f := range []string{"f1", "f2", "f3"} {
		_, _, err := s.svc.FileFlag(s.ctx(), review.ID, f)
		s.Require().NoError(err)
	}

	events := s.sink.Events()
	s.Require().Len(events, 1, "only the transition is audited")
	s.Equal(audit.KindReviewFlagged, events[0].Kind)
	s.Equal(review.ID, events[0].Subject)
	s.Equal(listing.ID, events[0].Details["listing_id"])
	s.Equal("3", events[0].Details["flag_count"])
}

func (s *ServiceSuite) TestResubmissionResetsFlaggedStatus() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	for _, f := range []string{"f1", "f2", "f3"} {
		_, _, err := s.svc.FileFlag(s.ctx(), review.ID, f)
		s.Require().NoError(err)
	}

	updated, created, err := s.svc.SubmitRating(s.ctx(), service.SubmitRatingInput{
		ListingID: listing.ID, AuthorID: "alice", Trust: 4, Usefulness: 4, Comment: "rewritten",
	})
	s.Require().NoError(err)
	s.False(created)
	s.Equal(models.StatusApproved, updated.Status, "a fresh edit is new content")
	s.Equal(3, updated.FlagCount, "flag rows persist across the edit")
}

func (s *ServiceSuite) TestFileFlagInvalidates() {
	listing := s.createListing("alpha", models.SourceOfficial, "")
	review := s.submit(listing.ID, "alice", 3, 3)

	_, _, err := s.svc.FileFlag(s.ctx(), review.ID, "f1")
	s.Require().NoError(err)

	keys := s.deletedKeys()
	s.True(keys[cache.ReviewView(review.ID).String()])
	s.True(keys[cache.ListingView(listing.ID).String()])
}

// Aggregates must always equal a fresh recomputation over the stored reviews,
// whatever sequence of mutations produced them.
func TestAggregatesMatchRecomputation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	svc := service.New(st, cache.NewMemory(), nil, metrics.New(prometheus.NewRegistry()), logger)

	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	listing, err := svc.CreateListing(ctx, service.CreateListingInput{Name: "alpha", Source: models.SourceOfficial})
	require.NoError(t, err)

	type submission struct {
		author            string
		trust, usefulness int
	}
	seq := []submission{
		{"a", 5, 5}, {"b", 1, 2}, {"c", 3, 4},
		{"a", 2, 2}, // edit
		{"d", 4, 4},
		{"b", 5, 5}, // edit
	}
	var reviews []models.Review
	for _, sub := range seq {
		review, _, err := svc.SubmitRating(ctx, service.SubmitRatingInput{
			ListingID: listing.ID, AuthorID: sub.author, Trust: sub.trust, Usefulness: sub.usefulness,
		})
		require.NoError(t, err)
		_ = review
	}

	// Recompute independently from the distinct per-author final scores.
	final := map[string]submission{}
	for _, sub := range seq {
		final[sub.author] = sub
	}
	for _, sub := range final {
		reviews = append(reviews, models.Review{TrustScore: sub.trust, UsefulnessScore: sub.usefulness, CreatedAt: now})
	}
	want := models.ComputeStats(reviews, now)

	got, err := svc.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, want.TotalRatings, got.TotalRatings)
	require.InDelta(t, want.AvgTrust, got.AvgTrust, 1e-9)
	require.InDelta(t, want.AvgUsefulness, got.AvgUsefulness, 1e-9)
	require.InDelta(t, want.CombinedScore, got.CombinedScore, 1e-9)
}
