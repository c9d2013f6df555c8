package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fluxbase-eu/advancedsearch/internal/testutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Increment(t *testing.T) {
	expires := time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)
	db := &testutil.MockExecutor{
		OnQueryRow: func(ctx context.Context, sql string, args ...interface{}) pgx.Row {
			return &testutil.MockRow{Values: []interface{}{int64(4), expires}}
		},
	}

	c, err := NewPostgresStore(db).Increment(context.Background(), "ip:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Counter{Count: 4, ExpiresAt: expires}, c)

	calls := db.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].SQL, "INSERT INTO rate_limits")
	assert.Contains(t, calls[0].SQL, "ON CONFLICT (key)")
	assert.Equal(t, []interface{}{"ip:10.0.0.1", int64(60000)}, calls[0].Args)
}

func TestPostgresStore_IncrementError(t *testing.T) {
	db := &testutil.MockExecutor{
		OnQueryRow: func(ctx context.Context, sql string, args ...interface{}) pgx.Row {
			return &testutil.MockRow{ErrVal: errors.New("relation \"rate_limits\" does not exist")}
		},
	}

	_, err := NewPostgresStore(db).Increment(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestPostgresStore_ResetAndCleanup(t *testing.T) {
	db := &testutil.MockExecutor{
		OnExec: func(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("DELETE 3"), nil
		},
	}
	store := NewPostgresStore(db)

	require.NoError(t, store.Reset(context.Background(), "k"))
	removed, err := store.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	calls := db.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []interface{}{"k"}, calls[0].Args)
	assert.Contains(t, calls[1].SQL, "expires_at <= NOW()")
	assert.NoError(t, store.Close())
}
