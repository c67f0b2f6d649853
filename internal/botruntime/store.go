package botruntime

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store persists Runtime records across process restarts.
type Store interface {
	Get(ctx context.Context, botID string) (*Runtime, error)
	Upsert(ctx context.Context, r Runtime) error
}

// MemoryStore is a mutex-guarded in-memory Store, used in tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	runtimes map[string]Runtime
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runtimes: make(map[string]Runtime)}
}

func (s *MemoryStore) Get(ctx context.Context, botID string) (*Runtime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runtimes[botID]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, r Runtime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtimes[r.BotID] = r
	return nil
}

// PostgresStore is grounded on the teacher's internal/persistence/postgres repo style: a thin
// sqlx.DB wrapper, per-call context timeout, upsert via ON CONFLICT, sql.ErrNoRows mapped to a
// nil result rather than an error.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: timeout}
}

type botRuntimeRow struct {
	BotID        string    `db:"bot_id"`
	Status       string    `db:"status"`
	Reason       string    `db:"reason"`
	TransitionID string    `db:"transition_id"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (s *PostgresStore) Get(ctx context.Context, botID string) (*Runtime, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row botRuntimeRow
	err := s.db.GetContext(ctx, &row, `
		SELECT bot_id, status, reason, transition_id, updated_at
		FROM bot_runtimes
		WHERE bot_id = $1`, botID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("botruntime: get failed: %w", err)
	}
	return &Runtime{
		BotID: row.BotID, Status: Status(row.Status), Reason: row.Reason,
		TransitionID: row.TransitionID, UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, r Runtime) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_runtimes (bot_id, status, reason, transition_id, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bot_id) DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			transition_id = EXCLUDED.transition_id,
			updated_at = EXCLUDED.updated_at`,
		r.BotID, string(r.Status), r.Reason, r.TransitionID, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("botruntime: upsert failed: %w", err)
	}
	return nil
}
