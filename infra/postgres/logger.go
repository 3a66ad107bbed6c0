package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/mstgnz/walletpay/infra/conn"
	"github.com/mstgnz/walletpay/payment"
)

const (
	DefaultTable = "payment_attempts"

	maxRecentLimit = 100
	maxStatsHours  = 8760
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// AttemptStats summarises the attempts of a time window
type AttemptStats struct {
	Hours         int      `json:"hours"`
	Total         int      `json:"total"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	Errored       int      `json:"errored"`
	Replayed      int      `json:"replayed"`
	SuccessRate   float64  `json:"success_rate"`
	AvgDurationMs *float64 `json:"avg_duration_ms,omitempty"`
}

// Logger stores payment attempts in PostgreSQL
type Logger struct {
	db    *sql.DB
	table string
}

// NewLogger creates a new PostgreSQL attempt logger. The table name is
// interpolated into queries, so only lowercase identifiers are accepted.
func NewLogger(db *conn.DB, table string) (*Logger, error) {
	if db == nil || db.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Logger{db: db.DB, table: table}, nil
}

// EnsureSchema creates the attempts table and its indexes when missing
func (l *Logger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(l.table) {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func schemaStatements(table string) []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			request_id VARCHAR(128),
			gateway VARCHAR(64) NOT NULL,
			environment VARCHAR(16) NOT NULL,
			merchant_id VARCHAR(128) NOT NULL,
			state VARCHAR(32) NOT NULL,
			error_kind VARCHAR(32),
			reason TEXT,
			token_fingerprint VARCHAR(64),
			token_type VARCHAR(32),
			card_network VARCHAR(32),
			amount NUMERIC(18,2) NOT NULL,
			currency CHAR(3) NOT NULL,
			gateway_reference VARCHAR(255),
			replayed BOOLEAN NOT NULL DEFAULT FALSE,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at DESC)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_state ON %s (state)`, table, table),
	}
}

// Record inserts an attempt. Re-recording the same attempt id is a no-op.
func (l *Logger) Record(ctx context.Context, a payment.Attempt) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, request_id, gateway, environment, merchant_id, state, error_kind,
			reason, token_fingerprint, token_type, card_network, amount, currency,
			gateway_reference, replayed, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING
	`, l.table)

	_, err := l.db.ExecContext(ctx, query,
		a.ID,
		nullString(a.RequestID),
		a.Gateway,
		a.Environment,
		a.MerchantID,
		string(a.State),
		nullString(a.ErrorKind),
		nullString(a.Reason),
		nullString(a.TokenFingerprint),
		nullString(a.TokenType),
		nullString(a.CardNetwork),
		a.Amount,
		a.Currency,
		nullString(a.GatewayReference),
		a.Replayed,
		a.DurationMs,
		a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment attempt: %w", err)
	}
	return nil
}

// RecentAttempts returns the newest attempts, optionally filtered by state
func (l *Logger) RecentAttempts(ctx context.Context, state string, limit int) ([]payment.Attempt, error) {
	query, args := recentAttemptsQuery(l.table, state, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []payment.Attempt
	for rows.Next() {
		var a payment.Attempt
		var rowState string
		var requestID, errorKind, reason, fingerprint sql.NullString
		var tokenType, cardNetwork, gatewayRef sql.NullString
		err := rows.Scan(
			&a.ID, &requestID, &a.Gateway, &a.Environment, &a.MerchantID, &rowState,
			&errorKind, &reason, &fingerprint, &tokenType, &cardNetwork,
			&a.Amount, &a.Currency, &gatewayRef, &a.Replayed, &a.DurationMs, &a.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
		}
		a.State = payment.State(rowState)
		a.RequestID = requestID.String
		a.ErrorKind = errorKind.String
		a.Reason = reason.String
		a.TokenFingerprint = fingerprint.String
		a.TokenType = tokenType.String
		a.CardNetwork = cardNetwork.String
		a.GatewayReference = gatewayRef.String
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payment attempts: %w", err)
	}

	return attempts, nil
}

func recentAttemptsQuery(table, state string, limit int) (string, []any) {
	if limit <= 0 || limit > maxRecentLimit {
		limit = 20
	}

	var (
		where string
		args  []any
	)
	if state != "" {
		args = append(args, strings.ToUpper(state))
		where = "WHERE state = $1"
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id::text, request_id, gateway, environment, merchant_id, state, error_kind,
			reason, token_fingerprint, token_type, card_network, amount::text, currency,
			gateway_reference, replayed, duration_ms, created_at
		FROM %s
		%s
		ORDER BY created_at DESC
		LIMIT $%d
	`, table, where, len(args))

	return query, args
}

// Stats counts attempts per terminal state over the last hours
func (l *Logger) Stats(ctx context.Context, hours int) (AttemptStats, error) {
	if hours <= 0 || hours > maxStatsHours {
		return AttemptStats{}, fmt.Errorf("invalid hours parameter: must be between 1 and %d", maxStatsHours)
	}

	query := fmt.Sprintf(`
		SELECT
			COUNT(*) AS total,
			COUNT(CASE WHEN state = 'SUCCEEDED' THEN 1 END) AS succeeded,
			COUNT(CASE WHEN state = 'FAILED' THEN 1 END) AS failed,
			COUNT(CASE WHEN state = 'ERRORED' THEN 1 END) AS errored,
			COUNT(CASE WHEN replayed THEN 1 END) AS replayed,
			AVG(duration_ms) AS avg_duration_ms
		FROM %s
		WHERE created_at >= $1
	`, l.table)

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	stats := AttemptStats{Hours: hours}
	var avg sql.NullFloat64
	err := l.db.QueryRowContext(ctx, query, since).Scan(
		&stats.Total,
		&stats.Succeeded,
		&stats.Failed,
		&stats.Errored,
		&stats.Replayed,
		&avg,
	)
	if err != nil {
		return AttemptStats{}, fmt.Errorf("failed to get attempt stats: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMs = &avg.Float64
	}
	stats.SuccessRate = successRate(stats.Succeeded, stats.Total)

	return stats, nil
}

func successRate(succeeded, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(succeeded) / float64(total) * 100
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
