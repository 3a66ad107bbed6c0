package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/payment"
)

const (
	statePending = "pending"
	stateDone    = "done"
)

// SQLiteStore keeps idempotency keys in a SQLite file so several processes
// on one host share them and results survive restarts.
type SQLiteStore struct {
	db   *sql.DB
	path string
	ttl  time.Duration
	now  func() time.Time
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string, ttl time.Duration) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// WAL plus immediate transactions so Begin serialises writers across processes
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_timeout=20000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:   db,
		path: dbPath,
		ttl:  ttl,
		now:  time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite idempotency store initialized", logger.LogContext{Fields: map[string]any{"path": dbPath}})
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		result TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_idempotency_created_at ON idempotency_keys(created_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// retryOperation retries an operation while SQLite reports the database as busy
func (s *SQLiteStore) retryOperation(ctx context.Context, operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}

		lastErr = err
		if attempt < maxRetries {
			// 10ms, 20ms, 40ms...
			backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
			logger.Warn(fmt.Sprintf("SQLite busy, retrying in %v (attempt %d/%d)", backoff, attempt+1, maxRetries+1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", maxRetries+1, lastErr)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// Begin claims a key or reports what already happened to it
func (s *SQLiteStore) Begin(ctx context.Context, key string) (*payment.Result, error) {
	var stored *payment.Result

	err := s.retryOperation(ctx, func() error {
		stored = nil

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var (
			state     string
			result    sql.NullString
			createdAt int64
		)
		err = tx.QueryRowContext(ctx,
			`SELECT state, result, created_at FROM idempotency_keys WHERE key = ?`, key,
		).Scan(&state, &result, &createdAt)

		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to read idempotency key: %w", err)
		case s.expired(createdAt):
			if _, err := tx.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = ?`, key); err != nil {
				return fmt.Errorf("failed to expire idempotency key: %w", err)
			}
		case state == statePending:
			return payment.ErrPaymentInFlight
		default:
			var r payment.Result
			if err := json.Unmarshal([]byte(result.String), &r); err != nil {
				return fmt.Errorf("failed to decode stored result: %w", err)
			}
			stored = &r
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO idempotency_keys (key, state, result, created_at) VALUES (?, ?, NULL, ?)`,
			key, statePending, s.now().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("failed to claim idempotency key: %w", err)
		}
		return tx.Commit()
	}, 3)

	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Complete stores the decided result for a claimed key
func (s *SQLiteStore) Complete(ctx context.Context, key string, result payment.Result) error {
	result.Err = nil
	result.Replayed = false
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	return s.retryOperation(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, state, result, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key)
		DO UPDATE SET
			state = excluded.state,
			result = excluded.result,
			created_at = excluded.created_at
		`, key, stateDone, string(data), s.now().UnixNano())
		if err != nil {
			return fmt.Errorf("failed to store result: %w", err)
		}
		return nil
	}, 3)
}

// Release frees a claimed key so the payment can be retried
func (s *SQLiteStore) Release(ctx context.Context, key string) error {
	return s.retryOperation(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("failed to release idempotency key: %w", err)
		}
		return nil
	}, 3)
}

// Cleanup removes expired keys
func (s *SQLiteStore) Cleanup() {
	if s.ttl <= 0 {
		return
	}

	cutoff := s.now().Add(-s.ttl).UnixNano()
	err := s.retryOperation(context.Background(), func() error {
		_, err := s.db.Exec(`DELETE FROM idempotency_keys WHERE created_at < ?`, cutoff)
		return err
	}, 3)
	if err != nil {
		logger.Error("Failed to clean up idempotency keys", err)
	}
}

// Stats returns store statistics
func (s *SQLiteStore) Stats() Stats {
	stats := Stats{Backend: BackendSQLite, TTL: s.ttl.String()}

	err := s.db.QueryRow(`
		SELECT COUNT(*), COUNT(CASE WHEN state = ? THEN 1 END) FROM idempotency_keys
	`, statePending).Scan(&stats.Size, &stats.InFlight)
	if err != nil {
		logger.Error("Failed to read idempotency stats", err)
	}
	return stats
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) expired(createdAt int64) bool {
	return s.ttl > 0 && s.now().Sub(time.Unix(0, createdAt)) > s.ttl
}
