// Package dispatcher implements the correlator's task-dispatch loop: open a
// transaction, take the per-entity row lock, validate the entity's current
// status/type, run the handler, and only enqueue any follow-on task after
// the transaction actually commits.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/fluxgate/correlator/internal/eventrecord"
	"github.com/fluxgate/correlator/internal/erroraccum"
	"github.com/fluxgate/correlator/internal/logging"
	"github.com/fluxgate/correlator/internal/model"
)

// Task is a named unit of delayed work, enqueued onto a TaskQueue.
type Task struct {
	Name        string
	EventRecordID int64
	RunAt       time.Time
}

// TaskQueue is the distributed queue a Dispatcher enqueues follow-on work
// onto. Implementations (internal/queue) are backed by Redis.
type TaskQueue interface {
	Enqueue(ctx context.Context, t Task) error
}

// Handler advances one event record by exactly one state-machine step. It
// must not commit or roll back tx itself; Run owns the transaction.
type Handler func(ctx context.Context, tx *sqlx.Tx, rec *model.EventRecord) (FollowOn, error)

// FollowOn describes the task (if any) to enqueue once the transaction
// commits.
type FollowOn struct {
	TaskName string
	Countdown time.Duration
	Skip      bool
}

// RunOpts validates the entity's status/type before a handler runs.
type RunOpts struct {
	ValidStartStatuses []model.EventStatus
	ValidStartTypes    []model.EventType
}

func (o RunOpts) statusAllowed(s model.EventStatus) bool {
	if len(o.ValidStartStatuses) == 0 {
		return true
	}
	for _, v := range o.ValidStartStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func (o RunOpts) typeAllowed(t model.EventType) bool {
	if len(o.ValidStartTypes) == 0 {
		return true
	}
	for _, v := range o.ValidStartTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Dispatcher runs correlator tasks against locked event_records rows.
type Dispatcher struct {
	records *eventrecord.Store
	errors  *erroraccum.Accumulator
	queue   TaskQueue
	log     *logging.Logger
}

// New constructs a Dispatcher.
func New(records *eventrecord.Store, errs *erroraccum.Accumulator, queue TaskQueue, log *logging.Logger) *Dispatcher {
	return &Dispatcher{records: records, errors: errs, queue: queue, log: log}
}

// Run is the correlator_task equivalent: lock, validate, handle, commit,
// enqueue.
func (d *Dispatcher) Run(ctx context.Context, taskName string, eventRecordID int64, opts RunOpts, h Handler) error {
	start := time.Now()

	tx, rec, err := d.records.LockForUpdate(ctx, eventRecordID)
	if err != nil {
		if errors.Is(err, eventrecord.ErrLocked) {
			d.log.WithFields(map[string]interface{}{"task": taskName, "record_id": eventRecordID}).
				Debug("row locked, deferring to contending worker")
			return nil
		}
		return fmt.Errorf("lock record %d: %w", eventRecordID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if !opts.statusAllowed(rec.Status) || !opts.typeAllowed(rec.EventType) {
		d.log.WithFields(map[string]interface{}{
			"task": taskName, "record_id": eventRecordID, "status": rec.Status, "type": rec.EventType,
		}).Warn("task invoked against record in unexpected status/type, skipping")
		return tx.Commit()
	}

	followOn, handlerErr := h(ctx, tx, &rec)
	if handlerErr != nil {
		if errors.Is(handlerErr, erroraccum.ErrThresholdExceeded) {
			rec.Status = model.StatusError
			if saveErr := d.records.Save(ctx, tx, rec); saveErr != nil {
				return saveErr
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			d.log.LogDispatch(ctx, string(rec.EventType), string(model.StatusError), eventRecordID, time.Since(start), handlerErr)
			return nil
		}
		d.log.LogDispatch(ctx, string(rec.EventType), string(rec.Status), eventRecordID, time.Since(start), handlerErr)
		return handlerErr
	}

	if err := d.records.Save(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record %d: %w", eventRecordID, err)
	}

	d.log.LogDispatch(ctx, string(rec.EventType), string(rec.Status), eventRecordID, time.Since(start), nil)

	if !followOn.Skip && followOn.TaskName != "" {
		task := Task{Name: followOn.TaskName, EventRecordID: eventRecordID, RunAt: time.Now().Add(followOn.Countdown)}
		if err := d.queue.Enqueue(ctx, task); err != nil {
			d.log.WithError(err).WithFields(map[string]interface{}{"task": followOn.TaskName, "record_id": eventRecordID}).
				Error("failed to enqueue follow-on task")
		}
	}
	return nil
}
