package connections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps connections in the calendar_connections table.
type PostgresStore struct {
	db querier
}

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("connections: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(db querier) *PostgresStore {
	return &PostgresStore{db: db}
}

const connectionColumns = `id, user_id, provider, access_token, refresh_token, token_expiry,
	calendar_id, calendar_name, account_email, is_active, last_synced_at, created_at, updated_at`

// Upsert inserts or replaces the connection for (user_id, provider) and reactivates it.
func (s *PostgresStore) Upsert(ctx context.Context, conn *Connection) (*Connection, error) {
	query := `
		INSERT INTO calendar_connections (
			id, user_id, provider, access_token, refresh_token, token_expiry,
			calendar_id, calendar_name, account_email, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			calendar_id = EXCLUDED.calendar_id,
			calendar_name = EXCLUDED.calendar_name,
			account_email = EXCLUDED.account_email,
			is_active = TRUE,
			updated_at = NOW()
		RETURNING ` + connectionColumns

	row := s.db.QueryRow(ctx, query,
		uuid.NewString(),
		conn.UserID,
		string(conn.Provider),
		conn.AccessToken,
		conn.RefreshToken,
		conn.TokenExpiry,
		conn.CalendarID,
		conn.CalendarName,
		conn.AccountEmail,
	)
	stored, err := scanConnection(row)
	if err != nil {
		return nil, fmt.Errorf("connections: upsert: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) Get(ctx context.Context, userID string, provider Provider) (*Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE user_id = $1 AND provider = $2`
	conn, err := scanConnection(s.db.QueryRow(ctx, query, userID, string(provider)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("connections: get: %w", err)
	}
	return conn, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM calendar_connections WHERE user_id = $1 ORDER BY provider`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("connections: list: %w", err)
	}
	defer rows.Close()

	var out []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("connections: scan: %w", err)
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT user_id FROM calendar_connections WHERE is_active ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("connections: list active users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("connections: scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateAccessToken(ctx context.Context, userID string, provider Provider, accessToken string, expiry time.Time) error {
	query := `UPDATE calendar_connections SET access_token = $3, token_expiry = $4, updated_at = NOW() WHERE user_id = $1 AND provider = $2`
	return s.execOne(ctx, "update token", query, userID, string(provider), accessToken, expiry)
}

func (s *PostgresStore) Deactivate(ctx context.Context, userID string, provider Provider) error {
	query := `UPDATE calendar_connections SET is_active = FALSE, updated_at = NOW() WHERE user_id = $1 AND provider = $2`
	return s.execOne(ctx, "deactivate", query, userID, string(provider))
}

func (s *PostgresStore) MarkSynced(ctx context.Context, userID string, provider Provider, at time.Time) error {
	query := `UPDATE calendar_connections SET last_synced_at = $3, updated_at = NOW() WHERE user_id = $1 AND provider = $2`
	return s.execOne(ctx, "mark synced", query, userID, string(provider), at)
}

func (s *PostgresStore) Delete(ctx context.Context, userID string, provider Provider) error {
	query := `DELETE FROM calendar_connections WHERE user_id = $1 AND provider = $2`
	return s.execOne(ctx, "delete", query, userID, string(provider))
}

func (s *PostgresStore) execOne(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("connections: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConnection(row pgx.Row) (*Connection, error) {
	var (
		conn     Connection
		provider string
	)
	if err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&provider,
		&conn.AccessToken,
		&conn.RefreshToken,
		&conn.TokenExpiry,
		&conn.CalendarID,
		&conn.CalendarName,
		&conn.AccountEmail,
		&conn.IsActive,
		&conn.LastSyncedAt,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	); err != nil {
		return nil, err
	}
	conn.Provider = Provider(provider)
	return &conn, nil
}
