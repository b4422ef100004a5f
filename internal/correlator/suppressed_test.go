package correlator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/model"
)

func docStoreWith(index, id string, src map[string]any) *fakeDocStore {
	return &fakeDocStore{docs: map[string]*eventstore.Document{
		index + "/" + id: {Index: index, ID: id, Src: src},
	}}
}

func TestHandleSuppressedSuppToNewReturnsToNew(t *testing.T) {
	docs := docStoreWith("events-20260730", "rec-1", map[string]any{"supp_to_new": true})
	svc := newTestService(docs)

	rec := &model.EventRecord{
		DocID: "rec-1", DocIndex: "events-20260730", Status: model.StatusSuppressed,
		Extras: map[string]any{string(model.ExtrasTicketID): 123},
	}

	followOn, err := svc.handleSuppressed(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleSuppressed: %v", err)
	}
	if rec.Status != model.StatusNew {
		t.Errorf("Status = %v, want new", rec.Status)
	}
	if _, ok := rec.Extras[string(model.ExtrasTicketID)]; ok {
		t.Error("expected ticket_id to be cleared")
	}
	if followOn.TaskName != TaskNew {
		t.Errorf("TaskName = %q, want %q", followOn.TaskName, TaskNew)
	}
}

func TestHandleSuppressedManualResolveMovesToResolving(t *testing.T) {
	docs := docStoreWith("events-20260730", "rec-1", map[string]any{"manual_resolve": true})
	svc := newTestService(docs)

	rec := &model.EventRecord{
		DocID: "rec-1", DocIndex: "events-20260730", Status: model.StatusSuppressed,
		Extras: map[string]any{},
	}

	followOn, err := svc.handleSuppressed(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleSuppressed: %v", err)
	}
	if rec.Status != model.StatusResolving {
		t.Errorf("Status = %v, want resolving", rec.Status)
	}
	if rec.Extras["resolving_action"] != string(model.ResolvingActionManual) {
		t.Errorf("resolving_action = %v, want %v", rec.Extras["resolving_action"], model.ResolvingActionManual)
	}
	if followOn.TaskName != TaskResolving {
		t.Errorf("TaskName = %q, want %q", followOn.TaskName, TaskResolving)
	}
}

func TestHandleSuppressedLinkedEventMovesToResolving(t *testing.T) {
	docs := docStoreWith("events-20260730", "rec-1", map[string]any{
		fieldLinkedEvent: map[string]any{"doc_index": "events-20260730", "doc_id": "up-1"},
	})
	svc := newTestService(docs)

	rec := &model.EventRecord{DocID: "rec-1", DocIndex: "events-20260730", Status: model.StatusSuppressed, Extras: map[string]any{}}

	followOn, err := svc.handleSuppressed(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleSuppressed: %v", err)
	}
	if rec.Extras["resolving_action"] != string(model.ResolvingActionSupp) {
		t.Errorf("resolving_action = %v, want %v", rec.Extras["resolving_action"], model.ResolvingActionSupp)
	}
	if followOn.Countdown != countdownLong {
		t.Errorf("Countdown = %v, want %v", followOn.Countdown, countdownLong)
	}
}

func TestHandleSuppressedNoDocumentYieldsNoFollowOn(t *testing.T) {
	docs := &fakeDocStore{}
	svc := newTestService(docs)
	rec := &model.EventRecord{DocID: "rec-missing", DocIndex: "events-20260730", Status: model.StatusSuppressed, Extras: map[string]any{}}

	followOn, err := svc.handleSuppressed(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleSuppressed: %v", err)
	}
	if followOn.TaskName != "" || followOn.Skip {
		t.Errorf("expected a zero-value FollowOn when no document exists, got %+v", followOn)
	}
}

func TestComposeComment(t *testing.T) {
	svc := newTestService(&fakeDocStore{})

	t.Run("down not yet posted", func(t *testing.T) {
		rec := &model.EventRecord{AssetUniqueID: "asset-1", Status: model.StatusSuppressed, Extras: map[string]any{}}
		got := svc.composeComment(rec)
		want := "Child Asset `asset-1` has reported similar issue at " + rec.EventTS.UTC().Format(time.RFC3339) + "."
		if got != want {
			t.Errorf("composeComment() = %q, want %q", got, want)
		}
	})

	t.Run("down already posted, nothing due", func(t *testing.T) {
		rec := &model.EventRecord{
			AssetUniqueID: "asset-1", Status: model.StatusSuppressed,
			Extras: map[string]any{string(model.ExtrasAssetDownComment): true},
		}
		if got := svc.composeComment(rec); got != "" {
			t.Errorf("composeComment() = %q, want empty", got)
		}
	})

	t.Run("resolving close_ticket posts topmost resolved notice", func(t *testing.T) {
		rec := &model.EventRecord{
			AssetUniqueID: "asset-1", Status: model.StatusResolving,
			Extras: map[string]any{
				string(model.ExtrasAssetDownComment): true,
				fieldResolvingAction:                 string(model.ResolvingActionCloseTicket),
			},
		}
		want := "Asset `asset-1` which reported this issue is now Resolved."
		if got := svc.composeComment(rec); got != want {
			t.Errorf("composeComment() = %q, want %q", got, want)
		}
	})

	t.Run("resolving supp appends resolved suffix when down not yet posted", func(t *testing.T) {
		rec := &model.EventRecord{
			AssetUniqueID: "asset-1", Status: model.StatusResolving,
			Extras: map[string]any{fieldResolvingAction: string(model.ResolvingActionSupp)},
		}
		got := svc.composeComment(rec)
		if !strings.HasSuffix(got, " but it is now Resolved.") {
			t.Errorf("composeComment() = %q, want suffix %q", got, " but it is now Resolved.")
		}
	})

	t.Run("resolving supp posts standalone child-resolved notice when down already posted", func(t *testing.T) {
		rec := &model.EventRecord{
			AssetUniqueID: "asset-1", Status: model.StatusResolving,
			Extras: map[string]any{
				string(model.ExtrasAssetDownComment): true,
				fieldResolvingAction:                 string(model.ResolvingActionSupp),
			},
		}
		want := "Child Asset `asset-1` which had reported similar issue is now Resolved."
		if got := svc.composeComment(rec); got != want {
			t.Errorf("composeComment() = %q, want %q", got, want)
		}
	})

	t.Run("resolving with up already posted and down already posted yields nothing due", func(t *testing.T) {
		rec := &model.EventRecord{
			AssetUniqueID: "asset-1", Status: model.StatusResolving,
			Extras: map[string]any{
				string(model.ExtrasAssetDownComment): true,
				string(model.ExtrasAssetUpComment):   true,
			},
		}
		if got := svc.composeComment(rec); got != "" {
			t.Errorf("composeComment() = %q, want empty", got)
		}
	})
}
