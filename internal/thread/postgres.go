package thread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// DefaultPostgresTable is the table used when none is configured.
const DefaultPostgresTable = "threads"

// PostgresStore keeps thread handles in a PostgreSQL table. Expired rows are
// filtered on read and overwritten on the next write for the same key.
type PostgresStore struct {
	conn  *sql.DB
	table string
	now   func() time.Time
}

// NewPostgresStore opens a connection using dsn and verifies it.
func NewPostgresStore(ctx context.Context, dsn, table string) (*PostgresStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL thread store", "table", table)

	return newPostgresStore(conn, table), nil
}

func newPostgresStore(conn *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = DefaultPostgresTable
	}
	return &PostgresStore{conn: conn, table: table, now: time.Now}
}

// EnsureSchema creates the thread table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		thread_key    TEXT PRIMARY KEY,
		thread_handle TEXT NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL
	)`, pq.QuoteIdentifier(s.table))
	if _, err := s.conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create thread table: %w", err)
	}
	return nil
}

// Get returns the unexpired handle for key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT thread_handle FROM %s WHERE thread_key = $1 AND expires_at > $2`,
		pq.QuoteIdentifier(s.table))

	var handle string
	err := s.conn.QueryRowContext(ctx, query, key, s.now()).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query thread: %w", err)
	}
	return handle, true, nil
}

// Put upserts the handle for key with a new expiry.
func (s *PostgresStore) Put(ctx context.Context, key, handle string, ttl time.Duration) error {
	query := fmt.Sprintf(`INSERT INTO %s (thread_key, thread_handle, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (thread_key) DO UPDATE
		SET thread_handle = EXCLUDED.thread_handle, expires_at = EXCLUDED.expires_at`,
		pq.QuoteIdentifier(s.table))

	if _, err := s.conn.ExecContext(ctx, query, key, handle, s.now().Add(ttl)); err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if s.conn != nil {
		slog.Info("Closing thread store connection")
		return s.conn.Close()
	}
	return nil
}
