package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Challenge struct {
	ID         string
	UserID     string
	Domain     string
	Record     string // rendered TXT value, "attribute=token"
	Token      string
	Verified   bool
	VerifiedAt sql.NullTime
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateChallenge inserts a new unverified challenge. The domain must already
// be canonicalized (lowercase, no trailing dot). Uniqueness on
// (user_id, domain) is enforced by the table's unique index.
func (s *Store) CreateChallenge(ctx context.Context, userID, domain, record, token string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenges (id, user_id, domain, record, token)
		VALUES ($1, $2, $3, $4, $5)
	`, id, userID, domain, record, token)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetChallenge retrieves the challenge for a (user_id, domain) pair
// regardless of verification state.
func (s *Store) GetChallenge(ctx context.Context, userID, domain string) (Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, domain, record, token, verified, verified_at, created_at, updated_at
		FROM challenges
		WHERE user_id = $1 AND domain = $2
	`, userID, domain)
	var c Challenge
	if err := scanChallenge(row, &c); err != nil {
		return c, err
	}
	return c, nil
}

// GetUnverifiedChallenge retrieves the challenge for a pair only while it is
// still unverified. Returns sql.ErrNoRows both when the pair was never issued
// and when it has already been verified.
func (s *Store) GetUnverifiedChallenge(ctx context.Context, userID, domain string) (Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, domain, record, token, verified, verified_at, created_at, updated_at
		FROM challenges
		WHERE user_id = $1 AND domain = $2 AND verified = false
	`, userID, domain)
	var c Challenge
	if err := scanChallenge(row, &c); err != nil {
		return c, err
	}
	return c, nil
}

// MarkVerified flips a challenge to verified only while it is still
// unverified. The predicate includes the verified = false condition so a
// concurrent duplicate update is a no-op rather than a double transition.
// Returns true if this call performed the transition.
func (s *Store) MarkVerified(ctx context.Context, userID, domain string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE challenges
		SET verified = true, verified_at = now(), updated_at = now()
		WHERE user_id = $1 AND domain = $2 AND verified = false
	`, userID, domain)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanChallenge(row *sql.Row, c *Challenge) error {
	return row.Scan(
		&c.ID, &c.UserID, &c.Domain, &c.Record, &c.Token,
		&c.Verified, &c.VerifiedAt, &c.CreatedAt, &c.UpdatedAt,
	)
}
