package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/vaihub/internal/storage"
)

const (
	defaultCleanupStream = "storage:cleanup"
	defaultCleanupGroup  = "cleanup-workers"
)

// CleanupQueue records storage objects whose delete has to be retried.
type CleanupQueue struct {
	Redis  *redis.Client
	Stream string
}

func (q *CleanupQueue) stream() string {
	if q.Stream == "" {
		return defaultCleanupStream
	}
	return q.Stream
}

func (q *CleanupQueue) Enqueue(ctx context.Context, bucket, key string) error {
	return q.enqueue(ctx, bucket, key, 1)
}

func (q *CleanupQueue) enqueue(ctx context.Context, bucket, key string, attempt int) error {
	return q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream(),
		Values: map[string]any{
			"bucket":  bucket,
			"key":     key,
			"attempt": strconv.Itoa(attempt),
		},
	}).Err()
}

type CleanupWorkerPool struct {
	Redis      *redis.Client
	Objects    storage.Deleter
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
	MaxAttempts    int
	RetryDelay     time.Duration
}

func (p *CleanupWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Objects == nil {
		return errors.New("CleanupWorkerPool missing dependency: Redis/Objects must be set")
	}
	if p.Stream == "" {
		p.Stream = defaultCleanupStream
	}
	if p.Group == "" {
		p.Group = defaultCleanupGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = 2 * time.Second
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *CleanupWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil {
				continue
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

// CleanupTask is one queued object delete.
type CleanupTask struct {
	Bucket  string
	Key     string
	Attempt int
}

func parseTask(msg redis.XMessage) (CleanupTask, bool) {
	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	t := CleanupTask{Bucket: getStr("bucket"), Key: getStr("key")}
	if t.Bucket == "" || t.Key == "" {
		return t, false
	}
	t.Attempt, _ = strconv.Atoi(getStr("attempt"))
	if t.Attempt <= 0 {
		t.Attempt = 1
	}
	return t, true
}

func (p *CleanupWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	task, ok := parseTask(msg)
	if !ok {
		p.Logger.WithField("redis_id", msg.ID).Warn("dropping malformed cleanup task")
		return
	}
	p.process(ctx, msg.ID, task)
}

// process deletes the object and requeues it with the next attempt number on
// failure until MaxAttempts is reached.
func (p *CleanupWorkerPool) process(ctx context.Context, id string, task CleanupTask) {
	log := p.Logger.WithFields(logrus.Fields{
		"redis_id": id,
		"bucket":   task.Bucket,
		"key":      task.Key,
		"attempt":  task.Attempt,
	})

	err := p.Objects.Delete(ctx, task.Bucket, task.Key)
	if err == nil {
		log.Info("orphaned object deleted")
		return
	}

	if task.Attempt >= p.MaxAttempts {
		log.WithError(err).Error("giving up on orphaned object")
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(p.RetryDelay):
	}

	q := CleanupQueue{Redis: p.Redis, Stream: p.Stream}
	if qerr := q.enqueue(ctx, task.Bucket, task.Key, task.Attempt+1); qerr != nil {
		log.WithError(qerr).Error("failed to requeue cleanup task")
		return
	}
	log.WithError(err).Warn("object delete failed, requeued")
}
