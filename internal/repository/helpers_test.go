package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultrelay/consult-relay-go/internal/database"
)

func TestHandleNotFound(t *testing.T) {
	v := 7

	got, err := HandleNotFound(&v, nil)
	require.NoError(t, err)
	assert.Equal(t, &v, got)

	got, err = HandleNotFound(&v, sql.ErrNoRows)
	require.NoError(t, err)
	assert.Nil(t, got)

	boom := errors.New("connection reset")
	got, err = HandleNotFound(&v, boom)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
}

// setupTestDB connects to TEST_DATABASE_URL, skipping when it is unset.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := database.Connect(url)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}
