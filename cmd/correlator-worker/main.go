// Command correlator-worker drains the distributed task queue: it runs the
// ingest step for newly received events and advances existing event records
// through the correlation state machine. It also hosts the periodic
// housekeeping scheduler (C9/C10 purge jobs) under a cluster-wide lock so
// running several worker replicas doesn't double-execute a cron tick.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxgate/correlator/internal/bootstrap"
	"github.com/fluxgate/correlator/internal/correlator"
	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/queue"
	"github.com/fluxgate/correlator/internal/scheduler"
)

func main() {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(rootCtx, "correlator-worker")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	disp := app.Dispatcher()

	handler := routeTask(app.Correlator, disp)
	pollInterval := time.Duration(app.Config.Queue.PollInterval) * time.Millisecond
	pool := queue.NewPool(app.Queue, handler, pollInterval, app.Config.Queue.WorkerCount, app.Log)

	sched := scheduler.New(app.Redis, app.Log)
	lease := time.Duration(app.Config.Purge.LockLeaseSec) * time.Second
	interval := app.Config.Purge.IntervalMinute
	if interval <= 0 {
		interval = 60
	}
	cronExpr := fmt.Sprintf("@every %dm", interval)

	if err := sched.Register(scheduler.Job{
		Name: "purge-terminal-records", Schedule: cronExpr, Lease: lease,
		Run: app.Purge.PurgeTerminalRecords(app.Config.Purge.RetainDays),
	}); err != nil {
		log.Fatalf("register purge-terminal-records job: %v", err)
	}
	if err := sched.Register(scheduler.Job{
		Name: "purge-stale-indices", Schedule: cronExpr, Lease: lease,
		Run: app.Purge.PurgeStaleIndices(app.Config.Purge.RetainDays),
	}); err != nil {
		log.Fatalf("register purge-stale-indices job: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	app.Log.WithFields(map[string]interface{}{"workers": app.Config.Queue.WorkerCount}).Info("correlator-worker running")

	go pool.Run(rootCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}

// routeTask dispatches a claimed task by name: the ingest task operates on
// an IngressLog row, everything else advances the state machine through the
// Dispatcher against an EventRecord row.
func routeTask(svc *correlator.Service, disp *dispatcher.Dispatcher) queue.TaskHandler {
	return func(ctx context.Context, task dispatcher.Task) error {
		if task.Name == correlator.TaskIngest {
			return svc.IngestHandler(ctx, task)
		}
		opts, h, ok := svc.HandlerFor(task.Name)
		if !ok {
			return fmt.Errorf("unknown task %q", task.Name)
		}
		return disp.Run(ctx, task.Name, task.EventRecordID, opts, h)
	}
}
