package httpingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fluxgate/correlator/internal/correlator"
	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/model"
)

const maxBodyBytes = 1 << 20 // 1MB

// handleEvent serves POST|PUT /event/: the inbound webhook endpoint every
// monitoring tool posts to. It writes an IngressLog row and enqueues the
// ingest task; it never indexes the document itself.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		http.Error(w, `{"error":"invalid_method"}`, http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	ip := remoteIP(r)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, `{"error":"read_failed"}`, http.StatusBadRequest)
		return
	}

	toolIP, err := s.rules.MonitorToolIP(ctx, ip)
	if err != nil {
		s.log.WithError(err).Error("resolve monitor tool ip failed")
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}

	if toolIP.ToolID != nil {
		tool, err := s.rules.MonitorTool(ctx, *toolIP.ToolID)
		if err == nil && tool.WebhookSecret != "" {
			if err := verifyWebhookToken(r, tool.WebhookSecret); err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
		}
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		fields = map[string]any{}
	}
	fields = SplitCSVFields(fields, s.csvFields)
	fields["remote_ip"] = ip

	logID, err := s.logs.Create(ctx, model.IngressLog{
		Method:          r.Method,
		TaskType:        "ingest",
		MonitorToolIPID: &toolIP.ID,
		RawBody:         string(body),
		TaskData:        fields,
	})
	if err != nil {
		s.log.WithError(err).Error("create ingress log failed")
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}

	if err := s.queue.Enqueue(ctx, dispatcher.Task{
		Name: correlator.TaskIngest, EventRecordID: logID, RunAt: time.Now(),
	}); err != nil {
		s.log.WithError(err).Error("enqueue ingest task failed")
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}

// handleGetEvent serves GET /event/{index}/{id}: returns the stored
// document as JSON.
func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	index := chi.URLParam(r, "index")
	id := chi.URLParam(r, "id")

	doc, err := s.docs.Get(r.Context(), index, id)
	if err != nil {
		if errors.Is(err, eventstore.ErrNotFound) {
			http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
			return
		}
		s.log.WithError(err).Error("get event document failed")
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc.Src)
}

type resolveBody struct {
	ITSMTicket *int `json:"itsm_ticket"`
}

// handleResolve serves POST /resolve/: the manual-resolve webhook. Per
// spec.md §4.11 the response is 200 on accepted, matching the external
// system's own quirk even though this is logically a 202.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"invalid_method"}`, http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, `{"error":"read_failed"}`, http.StatusBadRequest)
		return
	}

	var payload resolveBody
	if err := json.Unmarshal(body, &payload); err != nil || payload.ITSMTicket == nil {
		http.Error(w, `{"error":"missing itsm_ticket"}`, http.StatusBadRequest)
		return
	}

	logID, err := s.logs.Create(ctx, model.IngressLog{
		Method:   r.Method,
		TaskType: "resolve",
		RawBody:  string(body),
		TaskData: map[string]any{"itsm_ticket": *payload.ITSMTicket},
	})
	if err != nil {
		s.log.WithError(err).Error("create ingress log failed")
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}

	if err := s.resolver.ManualResolve(ctx, *payload.ITSMTicket); err != nil {
		_ = s.logs.Fail(ctx, logID)
		s.log.WithError(err).Error("manual resolve failed")
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}
	_ = s.logs.Complete(ctx, logID, "", "")

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"accepted"}`))
}
