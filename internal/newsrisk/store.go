package newsrisk

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresEventStore implements EventStore over sqlx+lib/pq, grounded on the teacher's
// internal/persistence/postgres upsert-by-natural-key repo style.
type PostgresEventStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

func NewPostgresEventStore(db *sqlx.DB, timeout time.Duration) *PostgresEventStore {
	return &PostgresEventStore{db: db, timeout: timeout}
}

type eventRow struct {
	Source    string    `db:"source"`
	SourceID  string    `db:"source_id"`
	Currency  string    `db:"currency"`
	Impact    int       `db:"impact"`
	Timestamp time.Time `db:"ts"`
	Title     string    `db:"title"`
}

func (s *PostgresEventStore) Upsert(ctx context.Context, events []Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("newsrisk: begin tx failed: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO economic_events (source, source_id, currency, impact, ts, title)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (source, source_id) DO UPDATE SET
				currency = EXCLUDED.currency,
				impact = EXCLUDED.impact,
				ts = EXCLUDED.ts,
				title = EXCLUDED.title`,
			e.Source, e.SourceID, e.Currency, e.Impact, e.Timestamp, e.Title)
		if err != nil {
			return fmt.Errorf("newsrisk: upsert event %s/%s failed: %w", e.Source, e.SourceID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresEventStore) ForwardWindow(ctx context.Context, from, to time.Time, currencies []string) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query, args, err := sqlx.In(`
		SELECT source, source_id, currency, impact, ts, title
		FROM economic_events
		WHERE ts >= ? AND ts <= ? AND currency IN (?)
		ORDER BY ts ASC`, from, to, currencies)
	if err != nil {
		return nil, fmt.Errorf("newsrisk: build query failed: %w", err)
	}
	query = s.db.Rebind(query)

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("newsrisk: forward window query failed: %w", err)
	}

	events := make([]Event, len(rows))
	for i, r := range rows {
		events[i] = Event{Source: r.Source, SourceID: r.SourceID, Currency: r.Currency, Impact: r.Impact, Timestamp: r.Timestamp, Title: r.Title}
	}
	return events, nil
}
