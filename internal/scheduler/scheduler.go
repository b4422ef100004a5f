// Package scheduler runs periodic housekeeping jobs (purge, etc.) under a
// cluster-wide named distributed lock with a bounded lease, so a job that
// runs on every node still executes at most once per tick.
package scheduler

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/fluxgate/correlator/internal/logging"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Schedule string // cron expression
	Lease    time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler registers Jobs with an in-process cron and guards each
// execution with a distributed Redis lock.
type Scheduler struct {
	cron   *cron.Cron
	redis  *redis.Client
	log    *logging.Logger
}

// New constructs a Scheduler.
func New(redisClient *redis.Client, log *logging.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), redis: redisClient, log: log}
}

// Register adds a job to the schedule. Must be called before Start.
func (s *Scheduler) Register(j Job) error {
	_, err := s.cron.AddFunc(j.Schedule, func() {
		s.runWithLock(context.Background(), j)
	})
	return err
}

// Start begins running registered jobs. Non-blocking; call Stop to halt.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }

func (s *Scheduler) runWithLock(ctx context.Context, j Job) {
	key := "correlator:sched-lock:" + j.Name
	lease := j.Lease
	if lease <= 0 {
		lease = 3 * time.Minute
	}

	acquired, err := s.redis.SetNX(ctx, key, "1", lease).Result()
	if err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{"job": j.Name}).Error("lock acquisition failed")
		return
	}
	if !acquired {
		s.log.WithFields(map[string]interface{}{"job": j.Name}).Debug("skipping tick, another node holds the lock")
		return
	}
	defer s.redis.Del(ctx, key)

	start := time.Now()
	if err := j.Run(ctx); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{"job": j.Name, "duration_ms": time.Since(start).Milliseconds()}).
			Error("periodic job failed")
		return
	}
	s.log.WithFields(map[string]interface{}{"job": j.Name, "duration_ms": time.Since(start).Milliseconds()}).Info("periodic job completed")
}
