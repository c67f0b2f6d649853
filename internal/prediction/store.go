package prediction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/controlplane/internal/trigger"
)

// Key identifies one persisted prediction record: a bot's state on a single timeframe.
type Key struct {
	BotID     string
	Timeframe string
}

// Store persists per-(bot,timeframe) State across process restarts, the C9 counterpart to
// botruntime.Store and newsrisk.EventStore.
type Store interface {
	Get(ctx context.Context, key Key) (*State, error)
	Upsert(ctx context.Context, key Key, s State) error
}

// MemoryStore is a mutex-guarded in-memory Store, used in tests and single-process deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[Key]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[Key]State)}
}

func (s *MemoryStore) Get(ctx context.Context, key Key) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	if !ok {
		return nil, nil
	}
	cp := st
	return &cp, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, key Key, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = st
	return nil
}

// PostgresStore is grounded on botruntime.PostgresStore's sqlx wrapper pattern: per-call context
// timeout, upsert via ON CONFLICT, sql.ErrNoRows mapped to a nil result. The parts of State that
// don't map onto flat columns (tags, trigger state, flip history, per-event throttle timestamps)
// round-trip through JSON columns, the same way the teacher's internal/domain/regime_repo.go
// stores its regime classifier weights as a JSON blob alongside scalar columns.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, timeout: timeout}
}

type predictionStateRow struct {
	BotID             string    `db:"bot_id"`
	Timeframe         string    `db:"timeframe"`
	Signal            string    `db:"signal"`
	Confidence        float64   `db:"confidence"`
	Tags              string    `db:"tags_json"`
	ATRRank           string    `db:"atr_rank"`
	TrendRank         string    `db:"trend_rank"`
	BreakoutScore     float64   `db:"breakout_score"`
	TriggerState      string    `db:"trigger_state_json"`
	LastUpdated       time.Time `db:"last_updated"`
	LastAiExplainedAt time.Time `db:"last_ai_explained_at"`
	Unstable          bool      `db:"unstable"`
	FlipTimestamps    string    `db:"flip_timestamps_json"`
	LastEventAt       string    `db:"last_event_at_json"`
}

func (s *PostgresStore) Get(ctx context.Context, key Key) (*State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row predictionStateRow
	err := s.db.GetContext(ctx, &row, `
		SELECT bot_id, timeframe, signal, confidence, tags_json, atr_rank, trend_rank,
			breakout_score, trigger_state_json, last_updated, last_ai_explained_at,
			unstable, flip_timestamps_json, last_event_at_json
		FROM prediction_states
		WHERE bot_id = $1 AND timeframe = $2`, key.BotID, key.Timeframe)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prediction: get failed: %w", err)
	}
	return rowToState(row)
}

func (s *PostgresStore) Upsert(ctx context.Context, key Key, st State) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row, err := stateToRow(key, st)
	if err != nil {
		return fmt.Errorf("prediction: marshal state failed: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO prediction_states (
			bot_id, timeframe, signal, confidence, tags_json, atr_rank, trend_rank,
			breakout_score, trigger_state_json, last_updated, last_ai_explained_at,
			unstable, flip_timestamps_json, last_event_at_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (bot_id, timeframe) DO UPDATE SET
			signal = EXCLUDED.signal,
			confidence = EXCLUDED.confidence,
			tags_json = EXCLUDED.tags_json,
			atr_rank = EXCLUDED.atr_rank,
			trend_rank = EXCLUDED.trend_rank,
			breakout_score = EXCLUDED.breakout_score,
			trigger_state_json = EXCLUDED.trigger_state_json,
			last_updated = EXCLUDED.last_updated,
			last_ai_explained_at = EXCLUDED.last_ai_explained_at,
			unstable = EXCLUDED.unstable,
			flip_timestamps_json = EXCLUDED.flip_timestamps_json,
			last_event_at_json = EXCLUDED.last_event_at_json`,
		row.BotID, row.Timeframe, row.Signal, row.Confidence, row.Tags, row.ATRRank, row.TrendRank,
		row.BreakoutScore, row.TriggerState, row.LastUpdated, row.LastAiExplainedAt,
		row.Unstable, row.FlipTimestamps, row.LastEventAt)
	if err != nil {
		return fmt.Errorf("prediction: upsert failed: %w", err)
	}
	return nil
}

func stateToRow(key Key, st State) (predictionStateRow, error) {
	tagsJSON, err := json.Marshal(st.Snapshot.Tags)
	if err != nil {
		return predictionStateRow{}, err
	}
	triggerJSON, err := json.Marshal(st.TriggerState)
	if err != nil {
		return predictionStateRow{}, err
	}
	flipsJSON, err := json.Marshal(st.FlipTimestamps)
	if err != nil {
		return predictionStateRow{}, err
	}
	eventsJSON, err := json.Marshal(st.LastEventAt)
	if err != nil {
		return predictionStateRow{}, err
	}
	return predictionStateRow{
		BotID:             key.BotID,
		Timeframe:         key.Timeframe,
		Signal:            st.Snapshot.Signal,
		Confidence:        st.Snapshot.Confidence,
		Tags:              string(tagsJSON),
		ATRRank:           st.Snapshot.ATRRank,
		TrendRank:         st.Snapshot.TrendRank,
		BreakoutScore:     st.Snapshot.BreakoutScore,
		TriggerState:      string(triggerJSON),
		LastUpdated:       st.LastUpdated,
		LastAiExplainedAt: st.LastAiExplainedAt,
		Unstable:          st.Unstable,
		FlipTimestamps:    string(flipsJSON),
		LastEventAt:       string(eventsJSON),
	}, nil
}

func rowToState(row predictionStateRow) (*State, error) {
	var tags []string
	if row.Tags != "" {
		if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
			return nil, fmt.Errorf("prediction: unmarshal tags: %w", err)
		}
	}
	var trig trigger.State
	if row.TriggerState != "" {
		if err := json.Unmarshal([]byte(row.TriggerState), &trig); err != nil {
			return nil, fmt.Errorf("prediction: unmarshal trigger state: %w", err)
		}
	}
	var flips []time.Time
	if row.FlipTimestamps != "" {
		if err := json.Unmarshal([]byte(row.FlipTimestamps), &flips); err != nil {
			return nil, fmt.Errorf("prediction: unmarshal flip timestamps: %w", err)
		}
	}
	var lastEventAt map[string]time.Time
	if row.LastEventAt != "" {
		if err := json.Unmarshal([]byte(row.LastEventAt), &lastEventAt); err != nil {
			return nil, fmt.Errorf("prediction: unmarshal last event at: %w", err)
		}
	}
	return &State{
		Snapshot: FeatureSnapshot{
			Signal:        row.Signal,
			Confidence:    row.Confidence,
			Tags:          tags,
			ATRRank:       row.ATRRank,
			TrendRank:     row.TrendRank,
			BreakoutScore: row.BreakoutScore,
		},
		TriggerState:      trig,
		LastUpdated:       row.LastUpdated,
		LastAiExplainedAt: row.LastAiExplainedAt,
		Unstable:          row.Unstable,
		FlipTimestamps:    flips,
		LastEventAt:       lastEventAt,
	}, nil
}
