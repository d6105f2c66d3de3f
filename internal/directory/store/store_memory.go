package store

import (
	"context"
	"sync"

	"trustboard/internal/directory/models"
)

// MemoryStore keeps the directory in mutex-guarded maps. It favors clarity
// over performance: RunInTx clones the state, runs the unit of work against
// the clone, and swaps it in only on success, so rollback is a no-op. Used
// for local development and unit tests.
type MemoryStore struct {
	mu sync.RWMutex
	st *state
}

type state struct {
	listings map[string]models.Listing
	// listingKeys maps name+"\x00"+owner to listing ID for conflict checks.
	listingKeys map[string]string
	reviews     map[string]models.Review
	// reviewKeys maps listing+"\x00"+author to review ID.
	reviewKeys map[string]string
	votes      map[string]map[string]models.Vote
	flags      map[string]map[string]models.Flag
}

func NewMemory() *MemoryStore {
	return &MemoryStore{st: &state{
		listings:    make(map[string]models.Listing),
		listingKeys: make(map[string]string),
		reviews:     make(map[string]models.Review),
		reviewKeys:  make(map[string]string),
		votes:       make(map[string]map[string]models.Vote),
		flags:       make(map[string]map[string]models.Flag),
	}}
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getListing(id)
}

func (s *MemoryStore) GetReview(_ context.Context, id string) (*models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getReview(id)
}

// RunInTx holds the store's write lock for the whole unit of work, so
// concurrent units are serialized and each observes a consistent state.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(&memoryTx{st: staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

// memoryTx applies mutations to a staged clone. The store lock is held by
// RunInTx for the transaction's lifetime.
type memoryTx struct {
	st *state
}

func (t *memoryTx) GetListing(_ context.Context, id string) (*models.Listing, error) {
	return t.st.getListing(id)
}

func (t *memoryTx) CreateListing(_ context.Context, listing *models.Listing) error {
	key := listing.Name + "\x00" + listing.OwnerID
	if _, exists := t.st.listingKeys[key]; exists {
		return ErrConflict
	}
	t.st.listings[listing.ID] = *listing
	t.st.listingKeys[key] = listing.ID
	return nil
}

func (t *memoryTx) UpdateListingStats(_ context.Context, listingID string, stats models.ListingStats) error {
	listing, ok := t.st.listings[listingID]
	if !ok {
		return ErrNotFound
	}
	listing.Apply(stats)
	t.st.listings[listingID] = listing
	return nil
}

func (t *memoryTx) GetReview(_ context.Context, id string) (*models.Review, error) {
	return t.st.getReview(id)
}

func (t *memoryTx) GetReviewByAuthor(_ context.Context, listingID, authorID string) (*models.Review, error) {
	id, ok := t.st.reviewKeys[listingID+"\x00"+authorID]
	if !ok {
		return nil, ErrNotFound
	}
	return t.st.getReview(id)
}

func (t *memoryTx) ListReviewsByListing(_ context.Context, listingID string) ([]models.Review, error) {
	var out []models.Review
	for _, r := range t.st.reviews {
		if r.ListingID == listingID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (t *memoryTx) UpsertReview(_ context.Context, review *models.Review) error {
	t.st.reviews[review.ID] = *review
	t.st.reviewKeys[review.ListingID+"\x00"+review.AuthorID] = review.ID
	return nil
}

func (t *memoryTx) UpdateReviewTallies(_ context.Context, reviewID string, helpful, notHelpful int) error {
	review, ok := t.st.reviews[reviewID]
	if !ok {
		return ErrNotFound
	}
	review.HelpfulCount = helpful
	review.NotHelpfulCount = notHelpful
	t.st.reviews[reviewID] = review
	return nil
}

func (t *memoryTx) UpdateReviewModeration(_ context.Context, reviewID string, flagCount int, status models.ReviewStatus) error {
	review, ok := t.st.reviews[reviewID]
	if !ok {
		return ErrNotFound
	}
	review.FlagCount = flagCount
	review.Status = status
	t.st.reviews[reviewID] = review
	return nil
}

func (t *memoryTx) UpsertVote(_ context.Context, vote models.Vote) error {
	byVoter, ok := t.st.votes[vote.ReviewID]
	if !ok {
		byVoter = make(map[string]models.Vote)
		t.st.votes[vote.ReviewID] = byVoter
	}
	if existing, voted := byVoter[vote.VoterID]; voted {
		existing.Helpful = vote.Helpful
		existing.UpdatedAt = vote.UpdatedAt
		byVoter[vote.VoterID] = existing
		return nil
	}
	byVoter[vote.VoterID] = vote
	return nil
}

func (t *memoryTx) CountVotes(_ context.Context, reviewID string) (int, int, error) {
	var helpful, notHelpful int
	for _, v := range t.st.votes[reviewID] {
		if v.Helpful {
			helpful++
		} else {
			notHelpful++
		}
	}
	return helpful, notHelpful, nil
}

func (t *memoryTx) CreateFlag(_ context.Context, flag models.Flag) error {
	byFlagger, ok := t.st.flags[flag.ReviewID]
	if !ok {
		byFlagger = make(map[string]models.Flag)
		t.st.flags[flag.ReviewID] = byFlagger
	}
	if _, exists := byFlagger[flag.FlaggerID]; exists {
		return ErrConflict
	}
	byFlagger[flag.FlaggerID] = flag
	return nil
}

func (t *memoryTx) CountFlags(_ context.Context, reviewID string) (int, error) {
	return len(t.st.flags[reviewID]), nil
}

func (st *state) getListing(id string) (*models.Listing, error) {
	if listing, ok := st.listings[id]; ok {
		return &listing, nil
	}
	return nil, ErrNotFound
}

func (st *state) getReview(id string) (*models.Review, error) {
	if review, ok := st.reviews[id]; ok {
		return &review, nil
	}
	return nil, ErrNotFound
}

func (st *state) clone() *state {
	c := &state{
		listings:    make(map[string]models.Listing, len(st.listings)),
		listingKeys: make(map[string]string, len(st.listingKeys)),
		reviews:     make(map[string]models.Review, len(st.reviews)),
		reviewKeys:  make(map[string]string, len(st.reviewKeys)),
		votes:       make(map[string]map[string]models.Vote, len(st.votes)),
		flags:       make(map[string]map[string]models.Flag, len(st.flags)),
	}
	for k, v := range st.listings {
		c.listings[k] = v
	}
	for k, v := range st.listingKeys {
		c.listingKeys[k] = v
	}
	for k, v := range st.reviews {
		c.reviews[k] = v
	}
	for k, v := range st.reviewKeys {
		c.reviewKeys[k] = v
	}
	for k, byVoter := range st.votes {
		inner := make(map[string]models.Vote, len(byVoter))
		for vk, vv := range byVoter {
			inner[vk] = vv
		}
		c.votes[k] = inner
	}
	for k, byFlagger := range st.flags {
		inner := make(map[string]models.Flag, len(byFlagger))
		for fk, fv := range byFlagger {
			inner[fk] = fv
		}
		c.flags[k] = inner
	}
	return c
}
