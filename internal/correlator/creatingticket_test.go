package correlator

import (
	"context"
	"testing"

	"github.com/fluxgate/correlator/internal/model"
)

func TestDefaultNASubstitutesKnownFields(t *testing.T) {
	src := map[string]any{"asset_unique_id": "server-01", "title": "disk full"}
	got := defaultNA("Alert on {asset_unique_id}: {title}", src)
	want := "Alert on server-01: disk full"
	if got != want {
		t.Errorf("defaultNA() = %q, want %q", got, want)
	}
}

func TestDefaultNAFallsBackForMissingOrNilFields(t *testing.T) {
	src := map[string]any{"title": nil}
	got := defaultNA("{asset_unique_id} / {title}", src)
	if got != "N/A / N/A" {
		t.Errorf("defaultNA() = %q, want %q", got, "N/A / N/A")
	}
}

func TestDefaultNAStringifiesNonStringValues(t *testing.T) {
	src := map[string]any{"severity": 3}
	if got := defaultNA("severity {severity}", src); got != "severity 3" {
		t.Errorf("defaultNA() = %q, want %q", got, "severity 3")
	}
}

func TestDefaultNAIgnoresUnterminatedBrace(t *testing.T) {
	got := defaultNA("broken {template", map[string]any{})
	if got != "broken {template" {
		t.Errorf("defaultNA() = %q, want input unchanged", got)
	}
}

func TestHandleCreatingTicketLinkedMovesToResolving(t *testing.T) {
	docs := docStoreWith("events-20260730", "rec-1", map[string]any{
		fieldLinkedEvent: map[string]any{"doc_index": "events-20260730", "doc_id": "up-1"},
	})
	svc := newTestService(docs)
	rec := &model.EventRecord{DocID: "rec-1", DocIndex: "events-20260730", Status: model.StatusCreatingTicket, Extras: map[string]any{}}

	followOn, err := svc.handleCreatingTicket(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleCreatingTicket: %v", err)
	}
	if rec.Status != model.StatusResolving {
		t.Errorf("Status = %v, want resolving", rec.Status)
	}
	if followOn.TaskName != TaskResolving {
		t.Errorf("TaskName = %q, want %q", followOn.TaskName, TaskResolving)
	}
}

func TestHandleCreatingTicketSkipsToAlertedWhenTicketAlreadyAssigned(t *testing.T) {
	docs := docStoreWith("events-20260730", "rec-1", map[string]any{})
	svc := newTestService(docs)
	rec := &model.EventRecord{
		DocID: "rec-1", DocIndex: "events-20260730", Status: model.StatusCreatingTicket,
		Extras: map[string]any{string(model.ExtrasTicketID): 555},
	}

	followOn, err := svc.handleCreatingTicket(context.Background(), nil, rec)
	if err != nil {
		t.Fatalf("handleCreatingTicket: %v", err)
	}
	if rec.Status != model.StatusAlerted {
		t.Errorf("Status = %v, want alerted", rec.Status)
	}
	if followOn.TaskName != TaskAlerted {
		t.Errorf("TaskName = %q, want %q", followOn.TaskName, TaskAlerted)
	}
}
