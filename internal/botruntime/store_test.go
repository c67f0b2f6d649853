package botruntime

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	db := sqlx.NewDb(mockDB, "postgres")
	return NewPostgresStore(db, 5*time.Second), mock
}

func TestPostgresStoreGetReturnsNilOnNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT bot_id, status, reason, transition_id, updated_at").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows(nil))

	r, err := store.Get(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Fatalf("expected nil on no rows, got %+v", r)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreGetScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{"bot_id", "status", "reason", "transition_id", "updated_at"}).
		AddRow("b1", "RUNNING", "", "tx-1", now)
	mock.ExpectQuery("SELECT bot_id, status, reason, transition_id, updated_at").
		WithArgs("b1").
		WillReturnRows(rows)

	r, err := store.Get(context.Background(), "b1")
	if err != nil {
		t.Fatal(err)
	}
	if r == nil || r.Status != StatusRunning || r.TransitionID != "tx-1" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestPostgresStoreUpsertExecutesInsertOnConflict(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectExec("INSERT INTO bot_runtimes").
		WithArgs("b1", "RUNNING", "", "tx-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Upsert(context.Background(), Runtime{BotID: "b1", Status: StatusRunning, TransitionID: "tx-1", UpdatedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if r, _ := s.Get(ctx, "b1"); r != nil {
		t.Fatal("expected nil for unknown bot")
	}
	s.Upsert(ctx, Runtime{BotID: "b1", Status: StatusRunning})
	r, err := s.Get(ctx, "b1")
	if err != nil || r == nil || r.Status != StatusRunning {
		t.Fatalf("expected round-tripped runtime, got %+v err=%v", r, err)
	}
}
