package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ravikeerthi7606/edustream/internal/db"
	"github.com/ravikeerthi7606/edustream/internal/session"
)

// PostgresStateStore persists client session keys to PostgreSQL so several
// processes (or machines) sharing a profile see the same signed-in user.
type PostgresStateStore struct {
	pool    db.Pool
	profile string
}

// NewPostgresStateStore constructs a session backend scoped to profile.
func NewPostgresStateStore(pool db.Pool, profile string) (*PostgresStateStore, error) {
	if pool == nil {
		return nil, errors.New("postgres state store: pool is required")
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return nil, errors.New("postgres state store: profile is required")
	}
	return &PostgresStateStore{pool: pool, profile: profile}, nil
}

// ReadAll loads every key stored for the profile.
func (s *PostgresStateStore) ReadAll(ctx context.Context) (map[string]string, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT key, value
        FROM client_state
        WHERE profile = $1
    `, s.profile)
	if err != nil {
		return nil, fmt.Errorf("query client state: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan client state: %w", err)
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client state: %w", err)
	}

	return values, nil
}

// WriteAll replaces the profile's keys inside one transaction.
func (s *PostgresStateStore) WriteAll(ctx context.Context, values map[string]string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin client state transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
        DELETE FROM client_state
        WHERE profile = $1
    `, s.profile); err != nil {
		return fmt.Errorf("delete client state: %w", err)
	}

	for key, value := range values {
		if _, err := tx.Exec(ctx, `
            INSERT INTO client_state (profile, key, value, updated_at)
            VALUES ($1, $2, $3, NOW())
        `, s.profile, key, value); err != nil {
			return fmt.Errorf("insert client state %s: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit client state: %w", err)
	}
	return nil
}

// DeleteAll removes every key stored for the profile.
func (s *PostgresStateStore) DeleteAll(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM client_state
        WHERE profile = $1
    `, s.profile); err != nil {
		return fmt.Errorf("delete client state: %w", err)
	}
	return nil
}

var _ session.Backend = (*PostgresStateStore)(nil)
