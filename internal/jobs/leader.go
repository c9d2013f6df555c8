package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Advisory lock ids used for leader election.
const (
	// MaintenanceLockID guards jobs that must run on one instance only,
	// such as pruning the shared rate limit table.
	MaintenanceLockID int64 = 0x41647653_00000001 // "AdvS" + 1
)

// RowQuerier runs single-row queries on one database session. Advisory
// locks belong to the session, so the elector needs a dedicated
// connection rather than a pool.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// LeaderElector holds a PostgreSQL advisory lock while this instance leads.
type LeaderElector struct {
	conn          RowQuerier
	lockID        int64
	lockName      string
	checkInterval time.Duration

	mu       sync.RWMutex
	isLeader bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLeaderElector creates an elector for lockID on conn. The lock name is
// only used in logs.
func NewLeaderElector(conn RowQuerier, lockID int64, lockName string) *LeaderElector {
	ctx, cancel := context.WithCancel(context.Background())
	return &LeaderElector{
		conn:          conn,
		lockID:        lockID,
		lockName:      lockName,
		checkInterval: 5 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// Start runs the election loop in the background.
func (le *LeaderElector) Start() {
	log.Info().
		Str("lock", le.lockName).
		Int64("lock_id", le.lockID).
		Msg("Starting leader election")

	go le.electionLoop()
}

// Stop ends the election loop and releases the lock if held.
func (le *LeaderElector) Stop() {
	log.Info().
		Str("lock", le.lockName).
		Bool("was_leader", le.IsLeader()).
		Msg("Stopping leader election")

	le.cancel()
	<-le.done

	if le.IsLeader() {
		le.releaseLock()
	}
}

// IsLeader reports whether this instance currently holds the lock.
func (le *LeaderElector) IsLeader() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.isLeader
}

func (le *LeaderElector) electionLoop() {
	defer close(le.done)

	ticker := time.NewTicker(le.checkInterval)
	defer ticker.Stop()

	le.check()
	for {
		select {
		case <-le.ctx.Done():
			return
		case <-ticker.C:
			le.check()
		}
	}
}

// check tries to take the lock, or confirms the session holding it is
// still alive. The lock is taken once so a single unlock releases it.
func (le *LeaderElector) check() {
	ctx, cancel := context.WithTimeout(le.ctx, 5*time.Second)
	defer cancel()

	if le.IsLeader() {
		var alive bool
		if err := le.conn.QueryRow(ctx, "SELECT true").Scan(&alive); err != nil {
			log.Warn().
				Err(err).
				Str("lock", le.lockName).
				Msg("Lost leader lock - session is gone")
			le.setLeader(false)
		}
		return
	}

	acquired, err := le.TryAcquireOnce(ctx)
	if err != nil {
		log.Error().
			Err(err).
			Str("lock", le.lockName).
			Msg("Failed to try advisory lock")
		return
	}
	if acquired {
		log.Info().
			Str("lock", le.lockName).
			Msg("Acquired leader lock - this instance is now the leader")
	}
}

// TryAcquireOnce tries to take the lock once without starting the loop.
func (le *LeaderElector) TryAcquireOnce(ctx context.Context) (bool, error) {
	var acquired bool
	if err := le.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", le.lockID).Scan(&acquired); err != nil {
		return false, err
	}
	le.setLeader(acquired)
	return acquired, nil
}

func (le *LeaderElector) releaseLock() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var released bool
	if err := le.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", le.lockID).Scan(&released); err != nil {
		log.Error().
			Err(err).
			Str("lock", le.lockName).
			Msg("Failed to release advisory lock")
	} else if released {
		log.Info().Str("lock", le.lockName).Msg("Released leader lock")
	}
	le.setLeader(false)
}

func (le *LeaderElector) setLeader(v bool) {
	le.mu.Lock()
	le.isLeader = v
	le.mu.Unlock()
}

// LeaderOnly wraps task so it only runs while le holds the lock. A nil
// elector means there is a single instance and the task always runs.
func LeaderOnly(le *LeaderElector, task Task) Task {
	return func(ctx context.Context) error {
		if le != nil && !le.IsLeader() {
			log.Debug().Str("lock", le.lockName).Msg("Skipping job - not the leader")
			return nil
		}
		return task(ctx)
	}
}
