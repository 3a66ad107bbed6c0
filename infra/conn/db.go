package conn

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
	"github.com/mstgnz/walletpay/infra/config"
	"github.com/mstgnz/walletpay/infra/logger"
)

type DB struct {
	*sql.DB
}

// Settings describes how to reach PostgreSQL
type Settings struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	Zone     string
	SSLMode  string
	Attempts int
	Backoff  time.Duration
}

// SettingsFromEnv reads DB_* variables
func SettingsFromEnv() Settings {
	return Settings{
		Host:     config.GetEnv("DB_HOST", "localhost"),
		Port:     config.GetEnv("DB_PORT", "5432"),
		User:     config.GetEnv("DB_USER", "postgres"),
		Password: config.GetEnv("DB_PASS", ""),
		Name:     config.GetEnv("DB_NAME", "walletpay"),
		Zone:     config.GetEnv("DB_ZONE", "UTC"),
		SSLMode:  config.GetEnv("DB_SSLMODE", "disable"),
		Attempts: config.GetIntEnv("DB_CONNECT_ATTEMPTS", 5),
		Backoff:  config.GetDurationEnv("DB_CONNECT_BACKOFF", 2*time.Second),
	}
}

// DSN renders the settings as a lib/pq connection URL
func (s Settings) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.User, s.Password),
		Host:   s.Host + ":" + s.Port,
		Path:   "/" + s.Name,
	}
	q := url.Values{}
	q.Set("sslmode", s.SSLMode)
	if s.Zone != "" {
		q.Set("timezone", s.Zone)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectDatabase opens the pool and pings it, retrying with a fixed backoff
func (db *DB) ConnectDatabase(ctx context.Context, s Settings) error {
	if s.Attempts <= 0 {
		s.Attempts = 1
	}
	logCtx := logger.LogContext{Fields: map[string]any{"host": s.Host, "database": s.Name}}

	var lastErr error
	for attempt := 1; attempt <= s.Attempts; attempt++ {
		database, err := sql.Open("postgres", s.DSN())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		database.SetMaxOpenConns(25)
		database.SetMaxIdleConns(5)
		database.SetConnMaxLifetime(5 * time.Minute)
		database.SetConnMaxIdleTime(2 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = database.PingContext(pingCtx)
		cancel()

		if lastErr == nil {
			logger.Info("DB connected", logCtx)
			db.DB = database
			return nil
		}

		database.Close()
		logger.Warn(fmt.Sprintf("DB ping failed (attempt %d/%d)", attempt, s.Attempts), logCtx)

		if attempt < s.Attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.Backoff):
			}
		}
	}

	return fmt.Errorf("failed to connect to database after %d attempts: %w", s.Attempts, lastErr)
}

// CloseDatabase closes the pool
func (db *DB) CloseDatabase() {
	if db.DB == nil {
		return
	}
	if err := db.DB.Close(); err != nil {
		logger.Error("Failed to close database connection", err)
		return
	}
	logger.Info("DB connection closed")
}
