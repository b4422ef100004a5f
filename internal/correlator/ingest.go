package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/ingresslog"
	"github.com/fluxgate/correlator/internal/model"
)

// TaskIngest is the Go analog of the distilled system's IngestEvent task: it
// runs once per IngressLog row, builds and indexes the event document, and
// creates the EventRecord that mirrors it.
const TaskIngest = "correlator.ingest"

// requiredFields are checked against the extracted field set before an
// event document is allowed to enter the state machine as "new".
var requiredFields = []string{fieldTitle, fieldEventType, fieldAssetUniqueID}

// IngestHandler has the queue.TaskHandler shape; the queue worker invokes it for
// TaskIngest, keyed by IngressLog ID (not EventRecord ID, which does not
// exist yet at this point).
func (s *Service) IngestHandler(ctx context.Context, task dispatcher.Task) error {
	return s.Ingest(ctx, task.EventRecordID)
}

// Ingest runs the C7.0 ingest handler against ingressLogID: build the
// document, run the tool's extraction pipeline, index it, create the
// mirroring EventRecord, and enqueue the status-appropriate follow-on.
func (s *Service) Ingest(ctx context.Context, ingressLogID int64) error {
	tx, log, err := s.ingressLogs.LockForUpdate(ctx, ingressLogID)
	if err != nil {
		if errors.Is(err, ingresslog.ErrLocked) {
			s.log.WithFields(map[string]interface{}{"ingress_log_id": ingressLogID}).
				Debug("ingress row locked, deferring to contending worker")
			return nil
		}
		return fmt.Errorf("lock ingress log %d: %w", ingressLogID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if log.Status != ingresslog.StatusPending {
		return tx.Commit()
	}

	toolName, toolID, pipeline, err := s.resolveIngestTool(ctx, log)
	if err != nil {
		return err
	}

	fields, extractErr := pipeline.Apply(log.RawBody)
	if extractErr != nil {
		fields = map[string]any{}
	}

	var payload any
	_ = json.Unmarshal([]byte(log.RawBody), &payload)

	now := time.Now().UTC()
	remoteIP, _ := log.TaskData["remote_ip"].(string)

	doc := map[string]any{
		"event_details":      payload,
		"monitor_tool_ip":    remoteIP,
		"monitor_tool_name":  toolName,
		"method":             log.Method,
		"received_ts":        now.Format(time.RFC3339Nano),
	}
	for k, v := range fields {
		doc[k] = v
	}

	missing := missingFields(doc)
	if len(missing) > 0 {
		doc[fieldStatus] = string(model.StatusError)
		doc["error_reason"] = "missing required fields: " + strings.Join(missing, ", ")
	} else {
		doc[fieldStatus] = string(model.StatusNew)
	}

	index := fmt.Sprintf("events-%s", now.Format("20060102"))
	docID := fmt.Sprintf("%s::%s::%d", s.environment, remoteIP, now.UnixMicro())

	if err := s.docs.Index(ctx, index, docID, doc, eventstore.OpCreate); err != nil {
		if failErr := s.ingressLogs.Fail(ctx, ingressLogID); failErr != nil {
			return failErr
		}
		return tx.Commit()
	}

	stored, err := s.docs.Get(ctx, index, docID)
	if err != nil {
		return err
	}

	rec, err := s.buildEventRecord(ingressLogID, toolID, index, docID, stored)
	if err != nil {
		return err
	}
	rec, err = s.records.Create(ctx, rec)
	if err != nil {
		return err
	}

	if err := s.ingressLogs.Complete(ctx, ingressLogID, index, docID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	followOn, countdown, ok := followOnForNew(rec)
	if !ok {
		return nil
	}
	return s.queue.Enqueue(ctx, dispatcher.Task{
		Name: followOn, EventRecordID: rec.ID, RunAt: time.Now().Add(countdown),
	})
}

func (s *Service) resolveIngestTool(ctx context.Context, log model.IngressLog) (string, *int64, eventstore.Pipeline, error) {
	if log.MonitorToolIPID == nil {
		return "", nil, eventstore.Pipeline{}, nil
	}
	toolIP, err := s.rules.MonitorToolIPByID(ctx, *log.MonitorToolIPID)
	if err != nil {
		return "", nil, eventstore.Pipeline{}, err
	}
	if toolIP.ToolID == nil {
		return "", nil, eventstore.Pipeline{}, nil
	}
	tool, err := s.rules.MonitorTool(ctx, *toolIP.ToolID)
	if err != nil {
		return "", nil, eventstore.Pipeline{}, err
	}
	pipeline, err := s.rules.Pipeline(ctx, tool.ID)
	if err != nil {
		return "", nil, eventstore.Pipeline{}, err
	}
	return tool.Name, toolIP.ToolID, pipeline, nil
}

func missingFields(doc map[string]any) []string {
	var missing []string
	for _, f := range requiredFields {
		v, ok := doc[f]
		if !ok || v == nil || v == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

func (s *Service) buildEventRecord(ingressLogID int64, toolID *int64, index, docID string, doc *eventstore.Document) (model.EventRecord, error) {
	rec := model.EventRecord{
		IngressLogID:    &ingressLogID,
		MonitorToolIPID: toolID,
		DocID:           docID,
		DocIndex:        index,
		Status:          model.EventStatus(stringField(doc.Src, fieldStatus)),
		Level:           stringField(doc.Src, "level"),
		Title:           stringField(doc.Src, fieldTitle),
		EventType:       model.EventType(stringField(doc.Src, fieldEventType)),
		AssetUniqueID:   stringField(doc.Src, fieldAssetUniqueID),
		AssetType:       stringField(doc.Src, "asset_type"),
		Extras:          map[string]any{},
	}
	if ts, ok := doc.Src[fieldEventTS]; ok {
		if parsed, ok := parseTimestamp(ts); ok {
			rec.EventTS = parsed
		}
	}
	if rec.EventTS.IsZero() {
		rec.EventTS = time.Now().UTC()
	}
	return rec, nil
}

func stringField(src map[string]any, key string) string {
	v, _ := src[key].(string)
	return v
}

func parseTimestamp(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// followOnForNew resolves the Dispatcher's follow-on enqueuer table for a
// freshly created record: new+down and new+up both re-enter TaskNew after a
// short delay; anything else (notably status=error from a failed
// extraction) is terminal and enqueues nothing.
func followOnForNew(rec model.EventRecord) (string, time.Duration, bool) {
	if rec.Status != model.StatusNew {
		return "", 0, false
	}
	switch rec.EventType {
	case model.EventTypeDown, model.EventTypeUp:
		return TaskNew, countdownShort, true
	default:
		return "", 0, false
	}
}
