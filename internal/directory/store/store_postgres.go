package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"trustboard/internal/directory/models"
)

//go:embed schema.sql
var schema string

const pgUniqueViolation = "23505"

// PostgresStore persists the directory in PostgreSQL over database/sql (pgx
// stdlib driver). Units of work map to SQL transactions; GetListing and
// GetReview inside a transaction take row locks so concurrent
// read-recompute-write sequences on the same subject serialize.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the schema. Idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	return scanListing(s.db.QueryRowContext(ctx, selectListing+` WHERE id = $1`, id))
}

func (s *PostgresStore) GetReview(ctx context.Context, id string) (*models.Review, error) {
	return scanReview(s.db.QueryRowContext(ctx, selectReview+` WHERE id = $1`, id))
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sql.Tx
}

const (
	selectListing = `SELECT id, name, source, owner_id, avg_trust, avg_usefulness,
		combined_score, total_ratings, recent_ratings, created_at, updated_at
		FROM listings`
	selectReview = `SELECT id, listing_id, author_id, trust_score, usefulness_score,
		comment, status, helpful_count, not_helpful_count, flag_count, created_at, updated_at
		FROM reviews`
)

func (t *pgTx) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	return scanListing(t.tx.QueryRowContext(ctx, selectListing+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) CreateListing(ctx context.Context, listing *models.Listing) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO listings (id, name, source, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		listing.ID, listing.Name, string(listing.Source), listing.OwnerID,
		listing.CreatedAt, listing.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateListingStats(ctx context.Context, listingID string, stats models.ListingStats) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE listings SET avg_trust = $2, avg_usefulness = $3, combined_score = $4,
		 total_ratings = $5, recent_ratings = $6, updated_at = now()
		 WHERE id = $1`,
		listingID, stats.AvgTrust, stats.AvgUsefulness, stats.CombinedScore,
		stats.TotalRatings, stats.RecentRatings,
	)
	if err != nil {
		return fmt.Errorf("update listing stats: %w", err)
	}
	return requireRow(res)
}

func (t *pgTx) GetReview(ctx context.Context, id string) (*models.Review, error) {
	return scanReview(t.tx.QueryRowContext(ctx, selectReview+` WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) GetReviewByAuthor(ctx context.Context, listingID, authorID string) (*models.Review, error) {
	return scanReview(t.tx.QueryRowContext(ctx,
		selectReview+` WHERE listing_id = $1 AND author_id = $2 FOR UPDATE`,
		listingID, authorID,
	))
}

func (t *pgTx) ListReviewsByListing(ctx context.Context, listingID string) ([]models.Review, error) {
	rows, err := t.tx.QueryContext(ctx, selectReview+` WHERE listing_id = $1`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []models.Review
	for rows.Next() {
		review, err := scanReviewRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *review)
	}
	return out, rows.Err()
}

func (t *pgTx) UpsertReview(ctx context.Context, review *models.Review) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO reviews (id, listing_id, author_id, trust_score, usefulness_score,
		   comment, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (listing_id, author_id) DO UPDATE SET
		   trust_score = EXCLUDED.trust_score,
		   usefulness_score = EXCLUDED.usefulness_score,
		   comment = EXCLUDED.comment,
		   status = EXCLUDED.status,
		   updated_at = EXCLUDED.updated_at`,
		review.ID, review.ListingID, review.AuthorID, review.TrustScore,
		review.UsefulnessScore, review.Comment, string(review.Status),
		review.CreatedAt, review.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateReviewTallies(ctx context.Context, reviewID string, helpful, notHelpful int) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE reviews SET helpful_count = $2, not_helpful_count = $3, updated_at = now()
		 WHERE id = $1`,
		reviewID, helpful, notHelpful,
	)
	if err != nil {
		return fmt.Errorf("update review tallies: %w", err)
	}
	return requireRow(res)
}

func (t *pgTx) UpdateReviewModeration(ctx context.Context, reviewID string, flagCount int, status models.ReviewStatus) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE reviews SET flag_count = $2, status = $3, updated_at = now()
		 WHERE id = $1`,
		reviewID, flagCount, string(status),
	)
	if err != nil {
		return fmt.Errorf("update review moderation: %w", err)
	}
	return requireRow(res)
}

func (t *pgTx) UpsertVote(ctx context.Context, vote models.Vote) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO votes (review_id, voter_id, helpful, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (review_id, voter_id) DO UPDATE SET
		   helpful = EXCLUDED.helpful,
		   updated_at = EXCLUDED.updated_at`,
		vote.ReviewID, vote.VoterID, vote.Helpful, vote.CreatedAt, vote.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

func (t *pgTx) CountVotes(ctx context.Context, reviewID string) (int, int, error) {
	var helpful, notHelpful int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FILTER (WHERE helpful), COUNT(*) FILTER (WHERE NOT helpful)
		 FROM votes WHERE review_id = $1`,
		reviewID,
	).Scan(&helpful, &notHelpful)
	if err != nil {
		return 0, 0, fmt.Errorf("count votes: %w", err)
	}
	return helpful, notHelpful, nil
}

func (t *pgTx) CreateFlag(ctx context.Context, flag models.Flag) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO flags (review_id, flagger_id, created_at) VALUES ($1, $2, $3)`,
		flag.ReviewID, flag.FlaggerID, flag.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert flag: %w", err)
	}
	return nil
}

func (t *pgTx) CountFlags(ctx context.Context, reviewID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM flags WHERE review_id = $1`, reviewID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count flags: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var source string
	err := row.Scan(&l.ID, &l.Name, &source, &l.OwnerID, &l.AvgTrust, &l.AvgUsefulness,
		&l.CombinedScore, &l.TotalRatings, &l.RecentRatings, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	l.Source = models.ListingSource(source)
	return &l, nil
}

func scanReview(row rowScanner) (*models.Review, error) {
	review, err := scanReviewRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return review, err
}

func scanReviewRow(row rowScanner) (*models.Review, error) {
	var r models.Review
	var status string
	err := row.Scan(&r.ID, &r.ListingID, &r.AuthorID, &r.TrustScore, &r.UsefulnessScore,
		&r.Comment, &status, &r.HelpfulCount, &r.NotHelpfulCount, &r.FlagCount,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan review: %w", err)
	}
	r.Status = models.ReviewStatus(status)
	return &r, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
