package conn

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "wallet")
	t.Setenv("DB_PASS", "p@ss word")
	t.Setenv("DB_NAME", "payments")
	t.Setenv("DB_ZONE", "America/Sao_Paulo")
	t.Setenv("DB_SSLMODE", "")
	t.Setenv("DB_CONNECT_ATTEMPTS", "3")

	s := SettingsFromEnv()

	assert.Equal(t, "db.internal", s.Host)
	assert.Equal(t, "disable", s.SSLMode)
	assert.Equal(t, 3, s.Attempts)
	assert.Equal(t, 2*time.Second, s.Backoff)
}

func TestSettings_DSN(t *testing.T) {
	s := Settings{Host: "db", Port: "5432", User: "wallet", Password: "p@ss word", Name: "payments", Zone: "UTC", SSLMode: "require"}

	u, err := url.Parse(s.DSN())
	require.NoError(t, err)

	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/payments", u.Path)
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pass)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "UTC", u.Query().Get("timezone"))
}

func TestConnectDatabase_GivesUp(t *testing.T) {
	var db DB
	s := Settings{Host: "127.0.0.1", Port: "1", User: "u", Name: "n", SSLMode: "disable", Attempts: 2, Backoff: time.Millisecond}

	err := db.ConnectDatabase(context.Background(), s)

	assert.ErrorContains(t, err, "after 2 attempts")
	assert.Nil(t, db.DB)
	db.CloseDatabase()
}
