package correlator

import (
	"context"
	"testing"
	"time"

	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/logging"
	"github.com/fluxgate/correlator/internal/model"
)

// fakeDocStore is a minimal in-memory eventstore.Store for exercising
// state-machine handlers without a database.
type fakeDocStore struct {
	searchResult *eventstore.SearchResult
	searchErr    error
	bulkOps      []eventstore.BulkOp
	bulkErr      error
	docs         map[string]*eventstore.Document
}

func (f *fakeDocStore) Get(ctx context.Context, index, id string) (*eventstore.Document, error) {
	if f.docs == nil {
		return nil, nil
	}
	d, ok := f.docs[index+"/"+id]
	if !ok {
		return nil, nil
	}
	return d, nil
}

func (f *fakeDocStore) Search(ctx context.Context, q eventstore.Query) (*eventstore.SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchResult == nil {
		return &eventstore.SearchResult{}, nil
	}
	return f.searchResult, nil
}

func (f *fakeDocStore) Update(ctx context.Context, index, id string, partial map[string]any) error {
	return nil
}

func (f *fakeDocStore) Bulk(ctx context.Context, ops []eventstore.BulkOp) error {
	f.bulkOps = ops
	return f.bulkErr
}

func (f *fakeDocStore) Index(ctx context.Context, index, id string, doc map[string]any, opType eventstore.OpType) error {
	return nil
}

func newTestService(docs eventstore.Store) *Service {
	return New(docs, nil, nil, nil, nil, nil, nil, logging.New("test", "error", "json"), "test")
}

func TestHandleNewUpLinksMatchesAndResolves(t *testing.T) {
	docs := &fakeDocStore{
		searchResult: &eventstore.SearchResult{Hits: []eventstore.Document{
			{Index: "events-20260730", ID: "down-1", Src: map[string]any{}},
		}},
	}
	svc := newTestService(docs)

	rec := &model.EventRecord{
		DocID: "up-1", DocIndex: "events-20260730", EventType: model.EventTypeUp,
		AssetUniqueID: "asset-1", Title: "link down", EventTS: time.Now(), Extras: map[string]any{},
	}

	followOn, err := svc.handleNewUp(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleNewUp: %v", err)
	}
	if !followOn.Skip {
		t.Error("expected Skip=true once matches are linked")
	}
	if rec.Status != model.StatusResolved {
		t.Errorf("Status = %v, want resolved", rec.Status)
	}
	if len(docs.bulkOps) != 1 || docs.bulkOps[0].ID != "down-1" {
		t.Errorf("bulkOps = %+v, want one op against down-1", docs.bulkOps)
	}
}

func TestHandleNewUpRetriesOnceWhenNoMatch(t *testing.T) {
	docs := &fakeDocStore{searchResult: &eventstore.SearchResult{}}
	svc := newTestService(docs)

	rec := &model.EventRecord{
		DocID: "up-1", DocIndex: "events-20260730", EventType: model.EventTypeUp,
		AssetUniqueID: "asset-1", Title: "link down", EventTS: time.Now(), Extras: map[string]any{}, RetryCount: 0,
	}

	followOn, err := svc.handleNewUp(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleNewUp: %v", err)
	}
	if followOn.Skip {
		t.Error("expected a retry follow-on, not Skip")
	}
	if followOn.TaskName != TaskNew {
		t.Errorf("TaskName = %q, want %q", followOn.TaskName, TaskNew)
	}
	if rec.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", rec.RetryCount)
	}
}
