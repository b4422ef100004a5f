package correlator

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/eventrecord"
	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/logging"
)

type updateCapturingDocStore struct {
	fakeDocStore
	updatedIndex, updatedID string
	updatedPartial          map[string]any
}

func (u *updateCapturingDocStore) Update(ctx context.Context, index, id string, partial map[string]any) error {
	u.updatedIndex, u.updatedID, u.updatedPartial = index, id, partial
	return nil
}

func TestManualResolveWritesDocumentWithoutLockingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	sdb := sqlx.NewDb(db, "postgres")

	now := time.Now().UTC()
	cols := []string{
		"id", "ingress_log_id", "monitor_tool_ip_id", "doc_id", "doc_index", "status", "level", "title",
		"event_ts", "event_type", "asset_unique_id", "asset_type", "retry_count", "extras", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		int64(1), nil, nil, "down-1", "events-20260730", "alerted", "critical", "link down",
		now, "down", "asset-1", "server", 0, []byte(`{}`), now, now,
	)
	mock.ExpectQuery("SELECT id, ingress_log_id").WithArgs("alerted", "down", 4321).WillReturnRows(rows)

	docs := &updateCapturingDocStore{}
	svc := New(docs, nil, nil, eventrecord.New(sdb), nil, nil, nil, logging.New("test", "error", "json"), "test")

	if err := svc.ManualResolve(context.Background(), 4321); err != nil {
		t.Fatalf("ManualResolve: %v", err)
	}
	if docs.updatedIndex != "events-20260730" || docs.updatedID != "down-1" {
		t.Errorf("Update target = %s/%s, want events-20260730/down-1", docs.updatedIndex, docs.updatedID)
	}
	if docs.updatedPartial["manual_resolve"] != true {
		t.Errorf("manual_resolve = %v, want true", docs.updatedPartial["manual_resolve"])
	}
	if _, ok := docs.updatedPartial["manual_resolve_ts"]; !ok {
		t.Error("expected manual_resolve_ts to be set")
	}
}

var _ eventstore.Store = (*updateCapturingDocStore)(nil)
