package correlator

import (
	"context"
	"testing"

	"github.com/fluxgate/correlator/internal/model"
)

func TestHandleAlertedManualResolve(t *testing.T) {
	docs := docStoreWith("events-20260730", "rec-1", map[string]any{"manual_resolve": true})
	svc := newTestService(docs)
	rec := &model.EventRecord{DocID: "rec-1", DocIndex: "events-20260730", Status: model.StatusAlerted, Extras: map[string]any{}}

	followOn, err := svc.handleAlerted(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleAlerted: %v", err)
	}
	if rec.Status != model.StatusResolving {
		t.Errorf("Status = %v, want resolving", rec.Status)
	}
	if rec.Extras["resolving_action"] != string(model.ResolvingActionManual) {
		t.Errorf("resolving_action = %v, want manual", rec.Extras["resolving_action"])
	}
	if followOn.TaskName != TaskResolving {
		t.Errorf("TaskName = %q, want %q", followOn.TaskName, TaskResolving)
	}
}

func TestHandleAlertedLinkedUpClosesTicket(t *testing.T) {
	docs := docStoreWith("events-20260730", "rec-1", map[string]any{
		fieldLinkedEvent: map[string]any{"doc_index": "events-20260730", "doc_id": "up-1"},
	})
	svc := newTestService(docs)
	rec := &model.EventRecord{DocID: "rec-1", DocIndex: "events-20260730", Status: model.StatusAlerted, Extras: map[string]any{}}

	followOn, err := svc.handleAlerted(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleAlerted: %v", err)
	}
	if rec.Extras["resolving_action"] != string(model.ResolvingActionCloseTicket) {
		t.Errorf("resolving_action = %v, want close_ticket", rec.Extras["resolving_action"])
	}
	if followOn.TaskName != TaskResolving {
		t.Errorf("TaskName = %q, want %q", followOn.TaskName, TaskResolving)
	}
}

func TestHandleAlertedWaitsWhenNeitherConditionHolds(t *testing.T) {
	docs := docStoreWith("events-20260730", "rec-1", map[string]any{})
	svc := newTestService(docs)
	rec := &model.EventRecord{DocID: "rec-1", DocIndex: "events-20260730", Status: model.StatusAlerted, Extras: map[string]any{}}

	followOn, err := svc.handleAlerted(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleAlerted: %v", err)
	}
	if rec.Status != model.StatusAlerted {
		t.Errorf("Status = %v, want unchanged alerted", rec.Status)
	}
	if followOn.TaskName != TaskAlerted {
		t.Errorf("TaskName = %q, want %q", followOn.TaskName, TaskAlerted)
	}
}
