package purge

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/eventrecord"
	"github.com/fluxgate/correlator/internal/ingresslog"
	"github.com/fluxgate/correlator/internal/logging"
)

type fakeDocPurger struct {
	staleIndices   []string
	activeByIndex  map[string]bool
	deletedIndices []string
	deleteCounts   map[string]int64
}

func (f *fakeDocPurger) StaleIndices(ctx context.Context, before time.Time) ([]string, error) {
	return f.staleIndices, nil
}

func (f *fakeDocPurger) AnyActiveDocument(ctx context.Context, index string, terminalStatuses []string) (bool, error) {
	return f.activeByIndex[index], nil
}

func (f *fakeDocPurger) DeleteDocuments(ctx context.Context, index string) (int64, error) {
	f.deletedIndices = append(f.deletedIndices, index)
	return f.deleteCounts[index], nil
}

func TestPurgeTerminalRecords(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	sdb := sqlx.NewDb(db, "postgres")

	mock.ExpectExec("DELETE FROM event_records").
		WithArgs("resolved", "deduped", "error", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM ingress_logs").
		WithArgs(sqlmock.AnyArg(), ingresslog.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 5))

	jobs := New(eventrecord.New(sdb), ingresslog.New(sdb), &fakeDocPurger{}, logging.New("test", "error", "json"))
	if err := jobs.PurgeTerminalRecords(30)(context.Background()); err != nil {
		t.Fatalf("PurgeTerminalRecords: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPurgeStaleIndicesSkipsActiveIndices(t *testing.T) {
	docs := &fakeDocPurger{
		staleIndices:  []string{"events-20260101", "events-20260102"},
		activeByIndex: map[string]bool{"events-20260101": true, "events-20260102": false},
		deleteCounts:  map[string]int64{"events-20260102": 7},
	}

	jobs := New(nil, nil, docs, logging.New("test", "error", "json"))
	if err := jobs.PurgeStaleIndices(30)(context.Background()); err != nil {
		t.Fatalf("PurgeStaleIndices: %v", err)
	}
	if len(docs.deletedIndices) != 1 || docs.deletedIndices[0] != "events-20260102" {
		t.Errorf("deletedIndices = %v, want only events-20260102", docs.deletedIndices)
	}
}

func TestPurgeStaleIndicesNoneStale(t *testing.T) {
	docs := &fakeDocPurger{}
	jobs := New(nil, nil, docs, logging.New("test", "error", "json"))
	if err := jobs.PurgeStaleIndices(30)(context.Background()); err != nil {
		t.Fatalf("PurgeStaleIndices: %v", err)
	}
	if len(docs.deletedIndices) != 0 {
		t.Errorf("expected no deletions, got %v", docs.deletedIndices)
	}
}
