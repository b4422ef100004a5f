// Package purge implements the correlator's two housekeeping jobs (C9):
// relational retention of terminal-status records/orphan ingress logs, and
// document-store retention of fully-resolved date-suffixed indices.
package purge

import (
	"context"
	"time"

	"github.com/fluxgate/correlator/internal/eventrecord"
	"github.com/fluxgate/correlator/internal/ingresslog"
	"github.com/fluxgate/correlator/internal/logging"
	"github.com/fluxgate/correlator/internal/model"
)

// DocumentIndexPurger is the subset of eventstore.PGStore the index-retention
// job needs; it is not part of the eventstore.Store contract because no
// state-machine handler should ever enumerate or delete whole indices.
type DocumentIndexPurger interface {
	StaleIndices(ctx context.Context, before time.Time) ([]string, error)
	AnyActiveDocument(ctx context.Context, index string, terminalStatuses []string) (bool, error)
	DeleteDocuments(ctx context.Context, index string) (int64, error)
}

var terminalDocStatuses = []string{
	string(model.StatusResolved), string(model.StatusDeduped), string(model.StatusError),
}

// Jobs bundles the purge job bodies, registered onto internal/scheduler.
type Jobs struct {
	records *eventrecord.Store
	logs    *ingresslog.Store
	docs    DocumentIndexPurger
	log     *logging.Logger
}

// New constructs a Jobs bundle.
func New(records *eventrecord.Store, logs *ingresslog.Store, docs DocumentIndexPurger, log *logging.Logger) *Jobs {
	return &Jobs{records: records, logs: logs, docs: docs, log: log}
}

// PurgeTerminalRecords deletes terminal-status event_records and orphaned
// ingress_logs older than retainDays.
func (j *Jobs) PurgeTerminalRecords(retainDays int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		before := time.Now().UTC().AddDate(0, 0, -retainDays)

		recCount, err := j.records.PurgeTerminal(ctx, before)
		if err != nil {
			return err
		}
		logCount, err := j.logs.PurgeOlderThan(ctx, before)
		if err != nil {
			return err
		}
		j.log.WithFields(map[string]interface{}{
			"records_deleted": recCount, "ingress_logs_deleted": logCount,
		}).Info("terminal record purge completed")
		return nil
	}
}

// PurgeStaleIndices deletes event-document indices older than retainDays
// whose search yields no non-terminal document.
func (j *Jobs) PurgeStaleIndices(retainDays int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		before := time.Now().UTC().AddDate(0, 0, -retainDays)

		stale, err := j.docs.StaleIndices(ctx, before)
		if err != nil {
			return err
		}

		var deletedIndices, deletedDocs int
		for _, index := range stale {
			active, err := j.docs.AnyActiveDocument(ctx, index, terminalDocStatuses)
			if err != nil {
				return err
			}
			if active {
				continue
			}
			n, err := j.docs.DeleteDocuments(ctx, index)
			if err != nil {
				return err
			}
			deletedIndices++
			deletedDocs += int(n)
		}
		j.log.WithFields(map[string]interface{}{
			"indices_deleted": deletedIndices, "documents_deleted": deletedDocs,
		}).Info("stale index purge completed")
		return nil
	}
}
