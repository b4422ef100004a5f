package ticketclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/initSession" {
			t.Errorf("path = %s, want /initSession", r.URL.Path)
		}
		if r.Header.Get("App-Token") != "app-tok" {
			t.Errorf("App-Token header = %q, want app-tok", r.Header.Get("App-Token"))
		}
		if r.Header.Get("Authorization") != "user_token user-tok" {
			t.Errorf("Authorization header = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(sessionResponse{SessionToken: "sess-123"})
	}))
	defer srv.Close()

	c := New(srv.URL, "app-tok", "user-tok", "entity-1", time.Second)
	tok, err := c.OpenSession(context.Background())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if tok != "sess-123" {
		t.Errorf("token = %q, want sess-123", tok)
	}
}

func TestCreateSendsSeverityAndReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Session-Token") != "sess-123" {
			t.Errorf("Session-Token header = %q, want sess-123", r.Header.Get("Session-Token"))
		}
		var body createTicketBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Input.Urgency != 3 {
			t.Errorf("Urgency = %d, want 3", body.Input.Urgency)
		}
		_ = json.NewEncoder(w).Encode(createTicketResponse{ID: 99})
	}))
	defer srv.Close()

	c := New(srv.URL, "app-tok", "user-tok", "entity-1", time.Second)
	id, err := c.Create(context.Background(), Token("sess-123"), CreateTicketRequest{
		Title: "disk full", Description: "disk usage above threshold", Severity: 3, AssignmentGroupUID: "grp-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != 99 {
		t.Errorf("TicketID = %d, want 99", id)
	}
}

func TestRequestErrorsOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, "app-tok", "user-tok", "entity-1", time.Second)
	if _, err := c.OpenSession(context.Background()); err == nil {
		t.Fatal("expected an error on 5xx response")
	}
}

func TestCloseSendsStatusSix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		input, _ := body["input"].(map[string]any)
		if input["status"] != float64(6) {
			t.Errorf("status = %v, want 6", input["status"])
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "app-tok", "user-tok", "entity-1", time.Second)
	if err := c.Close(context.Background(), Token("sess-123"), TicketID(42)); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
