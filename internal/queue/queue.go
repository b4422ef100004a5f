// Package queue implements the correlator's distributed delayed task queue
// on Redis: a sorted set keyed by run-at timestamp, polled by a pool of
// worker goroutines that claim-and-remove ready tasks.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fluxgate/correlator/internal/dispatcher"
)

const zsetKey = "correlator:tasks"

// RedisQueue implements dispatcher.TaskQueue on a single Redis sorted set.
type RedisQueue struct {
	client *redis.Client
}

var _ dispatcher.TaskQueue = (*RedisQueue)(nil)

// New constructs a RedisQueue.
func New(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

type payload struct {
	Name          string `json:"name"`
	EventRecordID int64  `json:"event_record_id"`
}

// Enqueue schedules a task to become claimable at t.RunAt.
func (q *RedisQueue) Enqueue(ctx context.Context, t dispatcher.Task) error {
	raw, err := json.Marshal(payload{Name: t.Name, EventRecordID: t.EventRecordID})
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, zsetKey, &redis.Z{
		Score:  float64(t.RunAt.UnixNano()),
		Member: string(raw),
	}).Err()
}

// Claim atomically pops the single oldest ready task (score <= now), if any.
// It returns false when nothing is ready yet.
func (q *RedisQueue) Claim(ctx context.Context) (dispatcher.Task, bool, error) {
	now := float64(time.Now().UnixNano())

	members, err := q.client.ZRangeByScore(ctx, zsetKey, &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now), Offset: 0, Count: 1,
	}).Result()
	if err != nil {
		return dispatcher.Task{}, false, err
	}
	if len(members) == 0 {
		return dispatcher.Task{}, false, nil
	}
	raw := members[0]

	removed, err := q.client.ZRem(ctx, zsetKey, raw).Result()
	if err != nil {
		return dispatcher.Task{}, false, err
	}
	if removed == 0 {
		// Another worker claimed it between the range read and our ZREM.
		return dispatcher.Task{}, false, nil
	}

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return dispatcher.Task{}, false, fmt.Errorf("decode task payload: %w", err)
	}
	return dispatcher.Task{Name: p.Name, EventRecordID: p.EventRecordID, RunAt: time.Now()}, true, nil
}

// Depth reports the number of tasks currently queued (claimed or not).
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, zsetKey).Result()
}
