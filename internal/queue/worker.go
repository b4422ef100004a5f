package queue

import (
	"context"
	"time"

	"github.com/fluxgate/correlator/internal/dispatcher"
	"github.com/fluxgate/correlator/internal/logging"
)

// TaskHandler processes one claimed task by name.
type TaskHandler func(ctx context.Context, task dispatcher.Task) error

// Pool runs a fixed number of worker goroutines pulling named tasks from the
// distributed queue.
type Pool struct {
	queue        *RedisQueue
	handler      TaskHandler
	pollInterval time.Duration
	workerCount  int
	log          *logging.Logger
}

// NewPool constructs a worker pool.
func NewPool(q *RedisQueue, handler TaskHandler, pollInterval time.Duration, workerCount int, log *logging.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{queue: q, handler: handler, pollInterval: pollInterval, workerCount: workerCount, log: log}
}

// Run blocks, running worker goroutines until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < p.workerCount; i++ {
		go func(id int) {
			p.loop(ctx, id)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < p.workerCount; i++ {
		<-done
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx, id)
		}
	}
}

func (p *Pool) drain(ctx context.Context, workerID int) {
	for {
		task, ok, err := p.queue.Claim(ctx)
		if err != nil {
			p.log.WithError(err).WithFields(map[string]interface{}{"worker": workerID}).Error("claim failed")
			return
		}
		if !ok {
			return
		}
		if err := p.handler(ctx, task); err != nil {
			p.log.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID, "task": task.Name, "record_id": task.EventRecordID,
			}).Error("task handler failed")
		}
	}
}
