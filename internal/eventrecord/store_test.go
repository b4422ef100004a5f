package eventrecord

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fluxgate/correlator/internal/model"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sqlx.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	sdb := sqlx.NewDb(db, "postgres")
	return New(sdb), mock, sdb
}

func sampleRowColumns() []string {
	return []string{
		"id", "ingress_log_id", "monitor_tool_ip_id", "doc_id", "doc_index", "status", "level", "title",
		"event_ts", "event_type", "asset_unique_id", "asset_type", "retry_count", "extras", "created_at", "updated_at",
	}
}

func TestLockForUpdateReturnsErrLockedOnNowaitConflict(t *testing.T) {
	store, mock, sdb := newMockStore(t)
	defer sdb.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, ingress_log_id").
		WithArgs(int64(5)).
		WillReturnError(&pq.Error{Code: "55P03"})
	mock.ExpectRollback()

	_, _, err := store.LockForUpdate(context.Background(), 5)
	if err != ErrLocked {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLockForUpdateDecodesRow(t *testing.T) {
	store, mock, sdb := newMockStore(t)
	defer sdb.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(sampleRowColumns()).AddRow(
		int64(1), int64(3), nil, "doc-1", "events-20260730", "new", "critical", "disk full",
		now, "up", "asset-1", "server", 0, []byte(`{"foo":"bar"}`), now, now,
	)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, ingress_log_id").WithArgs(int64(1)).WillReturnRows(rows)

	_, rec, err := store.LockForUpdate(context.Background(), 1)
	if err != nil {
		t.Fatalf("LockForUpdate: %v", err)
	}
	if rec.Status != model.StatusNew {
		t.Errorf("Status = %v, want new", rec.Status)
	}
	if rec.IngressLogID == nil || *rec.IngressLogID != 3 {
		t.Errorf("IngressLogID = %v, want pointer to 3", rec.IngressLogID)
	}
	if rec.MonitorToolIPID != nil {
		t.Errorf("MonitorToolIPID = %v, want nil", rec.MonitorToolIPID)
	}
	if rec.Extras["foo"] != "bar" {
		t.Errorf("Extras[foo] = %v, want bar", rec.Extras["foo"])
	}
}

func TestPurgeTerminalReturnsRowsAffected(t *testing.T) {
	store, mock, sdb := newMockStore(t)
	defer sdb.Close()

	before := time.Now().UTC()
	mock.ExpectExec("DELETE FROM event_records").
		WithArgs("resolved", "deduped", "error", before).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.PurgeTerminal(context.Background(), before)
	if err != nil {
		t.Fatalf("PurgeTerminal: %v", err)
	}
	if n != 4 {
		t.Errorf("PurgeTerminal rows = %d, want 4", n)
	}
}
