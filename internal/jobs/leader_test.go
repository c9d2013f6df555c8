package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/advancedsearch/internal/testutil"
)

// lockSession fakes the advisory lock functions of one database session.
type lockSession struct {
	mu       sync.Mutex
	free     bool
	pingErr  error
	lockErr  error
	unlocked int
}

func (s *lockSession) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(sql, "pg_try_advisory_lock"):
		if s.lockErr != nil {
			return &testutil.MockRow{ErrVal: s.lockErr}
		}
		return &testutil.MockRow{Values: []interface{}{s.free}}
	case strings.Contains(sql, "pg_advisory_unlock"):
		s.unlocked++
		return &testutil.MockRow{Values: []interface{}{true}}
	default:
		if s.pingErr != nil {
			return &testutil.MockRow{ErrVal: s.pingErr}
		}
		return &testutil.MockRow{Values: []interface{}{true}}
	}
}

func TestLeaderElector_TryAcquireOnce(t *testing.T) {
	tests := []struct {
		name       string
		session    *lockSession
		wantLeader bool
		wantErr    bool
	}{
		{name: "lock free", session: &lockSession{free: true}, wantLeader: true},
		{name: "lock held elsewhere", session: &lockSession{free: false}},
		{name: "query fails", session: &lockSession{lockErr: errors.New("conn closed")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			le := NewLeaderElector(tt.session, MaintenanceLockID, "test")

			got, err := le.TryAcquireOnce(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, le.IsLeader())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLeader, got)
			assert.Equal(t, tt.wantLeader, le.IsLeader())
		})
	}
}

func TestLeaderElector_CheckLosesDeadSession(t *testing.T) {
	session := &lockSession{free: true}
	le := NewLeaderElector(session, MaintenanceLockID, "test")

	le.check()
	require.True(t, le.IsLeader())

	session.mu.Lock()
	session.pingErr = errors.New("connection reset")
	session.mu.Unlock()

	le.check()
	assert.False(t, le.IsLeader())
}

func TestLeaderElector_StopReleasesLock(t *testing.T) {
	session := &lockSession{free: true}
	le := NewLeaderElector(session, MaintenanceLockID, "test")

	le.Start()
	require.Eventually(t, le.IsLeader, 2*time.Second, 10*time.Millisecond)

	le.Stop()
	assert.False(t, le.IsLeader())
	assert.Equal(t, 1, session.unlocked)
}

func TestLeaderOnly(t *testing.T) {
	ran := 0
	task := func(context.Context) error {
		ran++
		return nil
	}

	follower := NewLeaderElector(&lockSession{free: false}, MaintenanceLockID, "test")
	_, _ = follower.TryAcquireOnce(context.Background())
	require.NoError(t, LeaderOnly(follower, task)(context.Background()))
	assert.Equal(t, 0, ran)

	leader := NewLeaderElector(&lockSession{free: true}, MaintenanceLockID, "test")
	_, _ = leader.TryAcquireOnce(context.Background())
	require.NoError(t, LeaderOnly(leader, task)(context.Background()))
	assert.Equal(t, 1, ran)

	require.NoError(t, LeaderOnly(nil, task)(context.Background()))
	assert.Equal(t, 2, ran)
}
