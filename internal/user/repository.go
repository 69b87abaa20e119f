package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SetStatus writes the user's presence status against their durable
// profile, stamping last_seen on the way offline. The row is created on
// first sight so presence works for users provisioned elsewhere.
func (r *Repository) SetStatus(ctx context.Context, userID, status string) error {
	query := `
		INSERT INTO users (id, username, status, last_seen)
		VALUES ($1, '', $2, now())
		ON CONFLICT (id)
		DO UPDATE SET status = EXCLUDED.status, last_seen = now()
	`
	if _, err := r.db.ExecContext(ctx, query, userID, status); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// GetStatus reads the persisted presence state back, mostly for tooling.
func (r *Repository) GetStatus(ctx context.Context, userID string) (string, error) {
	var status string
	query := `SELECT status FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, userID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errors.New("user not found")
		}
		return "", err
	}
	return status, nil
}
