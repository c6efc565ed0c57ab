package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ocr-processing-coordinator/internal/domain"
	"ocr-processing-coordinator/internal/domain/model"
	"ocr-processing-coordinator/internal/domain/ports/queue"
)

const (
	keyDispatchReady   = "ocr:jobs:dispatch"
	keyDispatchDelayed = "ocr:jobs:dispatch:delayed"
	keyDispatchDead    = "ocr:jobs:dispatch:dead"
	keyRetry           = "ocr:jobs:retry"
	keyIndexing        = "ocr:jobs:indexing"
	keyFencePrefix     = "ocr:fence:"

	// fenceTTL bounds how long an indexing fence is remembered. A replay of a
	// terminal callback weeks later would re-enqueue, which is harmless: the
	// indexer itself upserts.
	fenceTTL = 7 * 24 * time.Hour
)

var _ queue.JobQueue = (*JobQueue)(nil)

// JobQueue is the redis-backed job transport: ready jobs on lists (BRPOP),
// delayed redeliveries on a zset scored by ready-time, dead letters parked on
// their own list, and indexing enqueues fenced with SETNX.
type JobQueue struct {
	cli *redis.Client
}

func NewJobQueue(c *Client) *JobQueue {
	return &JobQueue{cli: c.cli}
}

// promoteDue moves jobs whose ready-time has passed from the delayed zset to
// the ready list. Runs as a single script so a crashed consumer cannot lose a
// job between ZREM and LPUSH.
var promoteDue = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 100)
for _, job in ipairs(due) do
	redis.call("ZREM", KEYS[1], job)
	redis.call("LPUSH", KEYS[2], job)
end
return #due`)

func (q *JobQueue) EnqueueDispatch(ctx context.Context, job *model.DispatchJob) error {
	return q.push(ctx, keyDispatchReady, job)
}

func (q *JobQueue) DequeueDispatch(ctx context.Context, wait time.Duration) (*model.DispatchJob, error) {
	if err := promoteDue.Run(ctx, q.cli,
		[]string{keyDispatchDelayed, keyDispatchReady},
		time.Now().UnixMilli()).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("promote delayed dispatch jobs: %w", err)
	}

	var job model.DispatchJob
	if err := q.pop(ctx, keyDispatchReady, wait, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *JobQueue) RequeueDispatch(ctx context.Context, job *model.DispatchJob, delay time.Duration) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode dispatch job: %w", err)
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	return q.cli.ZAdd(ctx, keyDispatchDelayed, &redis.Z{Score: readyAt, Member: b}).Err()
}

func (q *JobQueue) DeadLetterDispatch(ctx context.Context, job *model.DispatchJob) error {
	return q.push(ctx, keyDispatchDead, job)
}

func (q *JobQueue) EnqueueRetry(ctx context.Context, job *model.RetryJob) error {
	return q.push(ctx, keyRetry, job)
}

func (q *JobQueue) DequeueRetry(ctx context.Context, wait time.Duration) (*model.RetryJob, error) {
	var job model.RetryJob
	if err := q.pop(ctx, keyRetry, wait, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (q *JobQueue) EnqueueIndexing(ctx context.Context, job *model.IndexingJob, fence string) (bool, error) {
	ok, err := q.cli.SetNX(ctx, keyFencePrefix+fence, 1, fenceTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire indexing fence: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := q.push(ctx, keyIndexing, job); err != nil {
		// Release the fence so a replay can re-attempt the enqueue.
		_ = q.cli.Del(ctx, keyFencePrefix+fence).Err()
		return false, err
	}
	return true, nil
}

func (q *JobQueue) push(ctx context.Context, key string, job interface{}) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.cli.LPush(ctx, key, b).Err()
}

func (q *JobQueue) pop(ctx context.Context, key string, wait time.Duration, out interface{}) error {
	vals, err := q.cli.BRPop(ctx, wait, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return err
	}
	// BRPOP returns [key, value]
	if len(vals) != 2 {
		return domain.ErrNotFound
	}
	if err := json.Unmarshal([]byte(vals[1]), out); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	return nil
}
