package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/geocoder89/trialbooking/internal/jobs"
	"github.com/redis/go-redis/v9"
)

var ErrEmpty = errors.New("queue empty")

const (
	DefaultPrefix = "trialbooking:jobs"

	promoteBatch = 100
)

// Keys names the structures backing one queue: the ready list workers pop
// from, the processing list holding claimed but unacknowledged jobs, the
// delayed set scored by run-at (unix ms) and the dead-letter list.
type Keys struct {
	Ready      string
	Processing string
	Delayed    string
	Dead       string
}

func KeysFor(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{
		Ready:      prefix + ":ready",
		Processing: prefix + ":processing",
		Delayed:    prefix + ":delayed",
		Dead:       prefix + ":dead",
	}
}

// moves due members from the delayed set to the ready list in one step, so two
// workers promoting at once never push the same job twice
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// hands every claimed job back to the consumer end of the ready list
var recoverScript = redis.NewScript(`
local n = 0
while redis.call('LMOVE', KEYS[1], KEYS[2], 'RIGHT', 'RIGHT') do
	n = n + 1
end
return n
`)

type Queue struct {
	rdb    redis.UniversalClient
	prefix string
	keys   Keys
	now    func() time.Time
}

func New(rdb redis.UniversalClient, prefix string) *Queue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Queue{
		rdb:    rdb,
		prefix: prefix,
		keys:   KeysFor(prefix),
		now:    time.Now,
	}
}

// WithConsumer returns a view of the queue whose claims land in a processing
// list of their own. Give every worker process a stable id so Recover after a
// restart only reclaims that process's jobs.
func (q *Queue) WithConsumer(id string) *Queue {
	c := *q
	if id != "" {
		c.keys.Processing = q.prefix + ":processing:" + id
	}
	return &c
}

func (q *Queue) Keys() Keys { return q.keys }

// Enqueue makes j ready now, or schedules it when its RunAt is in the future.
func (q *Queue) Enqueue(ctx context.Context, j jobs.Job) error {
	if j.RunAt.After(q.now()) {
		return q.Schedule(ctx, j, j.RunAt)
	}

	b, err := jobs.EncodeJob(j)
	if err != nil {
		return err
	}

	if err := q.rdb.LPush(ctx, q.keys.Ready, b).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", j.ID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the oldest ready job and moves it to the
// processing list. The job stays there until Ack, Schedule or DeadLetter, so a
// crash in between leaves it for Recover. ErrEmpty means nothing arrived in
// time. A member that no longer decodes is moved to the dead-letter list as
// is and reported as an error.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (jobs.Job, error) {
	raw, err := q.rdb.BLMove(ctx, q.keys.Ready, q.keys.Processing, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return jobs.Job{}, ErrEmpty
		}
		return jobs.Job{}, fmt.Errorf("dequeue: %w", err)
	}

	j, err := jobs.DecodeJob([]byte(raw))
	if err != nil {
		_, pushErr := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, q.keys.Processing, 1, raw)
			p.LPush(ctx, q.keys.Dead, raw)
			return nil
		})
		if pushErr != nil {
			return jobs.Job{}, errors.Join(err, pushErr)
		}
		return jobs.Job{}, err
	}

	j.Receipt = raw
	return j, nil
}

// Ack drops a claimed job from the processing list once it is finished.
func (q *Queue) Ack(ctx context.Context, j jobs.Job) error {
	if j.Receipt == "" {
		return nil
	}
	if err := q.rdb.LRem(ctx, q.keys.Processing, 1, j.Receipt).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", j.ID, err)
	}
	return nil
}

// Recover hands jobs left in the processing list by a previous run back to
// the ready list and returns how many moved. Call it before consuming.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	n, err := recoverScript.Run(ctx, q.rdb, []string{q.keys.Processing, q.keys.Ready}).Int()
	if err != nil {
		return 0, fmt.Errorf("recover in-flight: %w", err)
	}
	return n, nil
}

// Schedule parks j in the delayed set until at. A claimed job is acknowledged
// in the same transaction.
func (q *Queue) Schedule(ctx context.Context, j jobs.Job, at time.Time) error {
	j.RunAt = at.UTC()

	b, err := jobs.EncodeJob(j)
	if err != nil {
		return err
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, q.keys.Delayed, redis.Z{
			Score:  float64(at.UnixMilli()),
			Member: b,
		})
		if j.Receipt != "" {
			p.LRem(ctx, q.keys.Processing, 1, j.Receipt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", j.ID, err)
	}
	return nil
}

// PromoteDue moves every delayed job whose run-at is not after now onto the
// ready list and returns how many moved.
func (q *Queue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.keys.Delayed, q.keys.Ready},
		strconv.FormatInt(now.UnixMilli(), 10), promoteBatch,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("promote due: %w", err)
	}
	return n, nil
}

// DeadLetter parks a job that will not be retried again. A claimed job is
// acknowledged in the same transaction.
func (q *Queue) DeadLetter(ctx context.Context, j jobs.Job) error {
	j.UpdatedAt = q.now().UTC()

	b, err := jobs.EncodeJob(j)
	if err != nil {
		return err
	}

	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, q.keys.Dead, b)
		if j.Receipt != "" {
			p.LRem(ctx, q.keys.Processing, 1, j.Receipt)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter %s: %w", j.ID, err)
	}
	return nil
}

type Stats struct {
	Ready      int64
	Processing int64
	Delayed    int64
	Dead       int64
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var ready, processing, delayed, dead *redis.IntCmd

	_, err := q.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		ready = p.LLen(ctx, q.keys.Ready)
		processing = p.LLen(ctx, q.keys.Processing)
		delayed = p.ZCard(ctx, q.keys.Delayed)
		dead = p.LLen(ctx, q.keys.Dead)
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}

	return Stats{
		Ready:      ready.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
