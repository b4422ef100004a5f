package correlator

import (
	"context"
	"strings"

	"github.com/fluxgate/correlator/internal/eventstore"
	"github.com/fluxgate/correlator/internal/model"
)

// docField names used in the event_documents jsonb payload.
const (
	fieldAssetUniqueID   = "asset_unique_id"
	fieldTitle           = "title"
	fieldStatus          = "status"
	fieldEventType       = "event_type"
	fieldMonitorToolIP   = "monitor_tool_ip_id"
	fieldMonitorToolName = "monitor_tool_name"
	fieldEventTS         = "event_ts"
	fieldLinkedEvent     = "linked_event"
	fieldParentAssetID   = "parent_asset_unique_id"
	fieldParentEventID   = "parent_event_id"
	fieldParentEventIdx  = "parent_event_index"
	fieldSuppToNew       = "supp_to_new"
	fieldResolvingAction = "resolving_action"
	fieldManualResolveTS = "manual_resolve_ts"
)

func (s *Service) resolveToolID(ctx context.Context, rec *model.EventRecord) (int64, error) {
	if rec.MonitorToolIPID == nil {
		return 0, nil
	}
	ip, err := s.rules.MonitorToolIPByID(ctx, *rec.MonitorToolIPID)
	if err != nil {
		return 0, err
	}
	if ip.ToolID == nil {
		return 0, nil
	}
	return *ip.ToolID, nil
}

// findActiveDownMatches returns active DOWN event documents for the same
// asset/title (case-insensitive) with event_ts at or before rec's, newest
// first, matching process_new_up_event's search in the system this was
// distilled from.
func (s *Service) findActiveDownMatches(ctx context.Context, rec *model.EventRecord) ([]eventstore.Document, error) {
	activeStatuses := make([]any, 0, len(model.ActiveStatuses))
	for st := range model.ActiveStatuses {
		activeStatuses = append(activeStatuses, string(st))
	}

	res, err := s.docs.Search(ctx, eventstore.Query{
		Index: rec.DocIndex,
		Must: []eventstore.Clause{
			{Field: fieldAssetUniqueID, Op: eventstore.OpTerm, Value: strings.ToLower(rec.AssetUniqueID)},
			{Field: fieldTitle, Op: eventstore.OpTerm, Value: strings.ToLower(rec.Title)},
			{Field: fieldEventType, Op: eventstore.OpTerm, Value: string(model.EventTypeDown)},
			{Field: fieldEventTS, Op: eventstore.OpRange, Value: rec.EventTS.Format("2006-01-02T15:04:05Z07:00")},
			{Field: fieldStatus, Op: eventstore.OpTerms, Values: activeStatuses},
		},
		Sort:     []eventstore.SortField{{Field: fieldEventTS, Descending: true}},
		Size:     1000,
		Response: eventstore.ResponseList,
	})
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}

// linkMatches writes a linked_event pointer onto each matched down
// document without touching its EventRecord row lock; the down event's own
// next scheduled task pass observes the pointer and self-transitions to
// resolving. This mirrors ManualResolve's lock-free document write.
func (s *Service) linkMatches(ctx context.Context, rec *model.EventRecord, matches []eventstore.Document) error {
	ops := make([]eventstore.BulkOp, 0, len(matches))
	for _, m := range matches {
		ops = append(ops, eventstore.BulkOp{
			Index: m.Index,
			ID:    m.ID,
			Partial: map[string]any{
				fieldLinkedEvent: map[string]any{"doc_index": rec.DocIndex, "doc_id": rec.DocID},
			},
		})
	}
	return s.docs.Bulk(ctx, ops)
}

// findDuplicateActiveDown reports whether an active DOWN event already
// exists for the same asset/title, excluding rec itself.
func (s *Service) findDuplicateActiveDown(ctx context.Context, rec *model.EventRecord) (bool, error) {
	activeStatuses := make([]any, 0, len(model.ActiveStatuses))
	for st := range model.ActiveStatuses {
		activeStatuses = append(activeStatuses, string(st))
	}

	res, err := s.docs.Search(ctx, eventstore.Query{
		Index: rec.DocIndex,
		Must: []eventstore.Clause{
			{Field: fieldAssetUniqueID, Op: eventstore.OpTerm, Value: strings.ToLower(rec.AssetUniqueID)},
			{Field: fieldTitle, Op: eventstore.OpTerm, Value: strings.ToLower(rec.Title)},
			{Field: fieldEventType, Op: eventstore.OpTerm, Value: string(model.EventTypeDown)},
			{Field: fieldStatus, Op: eventstore.OpTerms, Values: activeStatuses},
		},
		Size:     2,
		Response: eventstore.ResponseList,
	})
	if err != nil {
		return false, err
	}
	for _, hit := range res.Hits {
		if hit.ID != rec.DocID {
			return true, nil
		}
	}
	return false, nil
}

// findParentActiveTicket looks up the parent asset's active unlinked down
// event for the same tool and title, if rec's document names a parent
// asset, matching the parent-child search in process_new_down_event: the
// full active-status set, not just alerted/creating_ticket, and excluding
// any down event that has itself already linked to an up event.
func (s *Service) findParentActiveTicket(ctx context.Context, rec *model.EventRecord) (ticketID int, found bool, parentIndex, parentID string, err error) {
	doc, err := s.document(ctx, rec)
	if err != nil || doc == nil {
		return 0, false, "", "", err
	}
	parentAsset, ok := doc.Src[fieldParentAssetID].(string)
	if !ok || parentAsset == "" {
		return 0, false, "", "", nil
	}
	toolName, _ := doc.Src[fieldMonitorToolName].(string)

	activeStatuses := make([]any, 0, len(model.ActiveStatuses))
	for st := range model.ActiveStatuses {
		activeStatuses = append(activeStatuses, string(st))
	}

	res, err := s.docs.Search(ctx, eventstore.Query{
		Index: rec.DocIndex,
		Must: []eventstore.Clause{
			{Field: fieldAssetUniqueID, Op: eventstore.OpTerm, Value: strings.ToLower(parentAsset)},
			{Field: fieldEventType, Op: eventstore.OpTerm, Value: string(model.EventTypeDown)},
			{Field: fieldTitle, Op: eventstore.OpTerm, Value: strings.ToLower(rec.Title)},
			{Field: fieldMonitorToolName, Op: eventstore.OpTerm, Value: toolName},
			{Field: fieldStatus, Op: eventstore.OpTerms, Values: activeStatuses},
		},
		MustNot: []eventstore.Clause{
			{Field: fieldLinkedEvent, Op: eventstore.OpExists},
		},
		Sort:     []eventstore.SortField{{Field: fieldEventTS, Descending: false}},
		Size:     1,
		Response: eventstore.ResponseFirst,
	})
	if err != nil || len(res.Hits) == 0 {
		return 0, false, "", "", err
	}
	parent := res.Hits[0]
	if tid, ok := parent.Src[string(model.ExtrasTicketID)]; ok {
		switch v := tid.(type) {
		case float64:
			return int(v), true, parent.Index, parent.ID, nil
		case int:
			return v, true, parent.Index, parent.ID, nil
		}
	}
	return 0, true, parent.Index, parent.ID, nil
}
