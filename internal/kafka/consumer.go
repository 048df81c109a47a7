package kafka

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const maxRetryInterval = 30 * time.Second

type Consumer struct {
	r             Reader
	workers       int
	retryInterval time.Duration
	log           *zap.Logger
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log)
}

func newConsumer(r Reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, retryInterval: 200 * time.Millisecond, log: log}
}

// Start dispatches messages to a fixed worker pool until ctx is cancelled.
// All messages of one partition go to the same worker, in order. A failed
// message is retried in place with backoff until it succeeds or ctx ends, and
// nothing after it on that partition is handled or committed meanwhile, so a
// commit never acknowledges an unprocessed offset (at-least-once).
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup

	for i := range jobs {
		jobs[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(id int, in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if !c.handle(ctx, id, m, h) {
					return // ctx selesai; offset ini belum di-commit
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					c.log.Error("commit failed", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i, jobs[i])
	}

	defer wg.Wait()
	defer func() {
		for _, ch := range jobs {
			close(ch)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs[c.route(m)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// route keeps a partition on one worker so its offsets commit in order.
func (c *Consumer) route(m kafka.Message) int {
	hsh := fnv.New32a()
	_, _ = hsh.Write([]byte(m.Topic))
	return int((hsh.Sum32() + uint32(m.Partition)) % uint32(c.workers))
}

// handle runs h until it succeeds. It reports false only when ctx ended first.
func (c *Consumer) handle(ctx context.Context, worker int, m kafka.Message, h Handler) bool {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryInterval
	eb.MaxInterval = maxRetryInterval
	eb.MaxElapsedTime = 0 // sampai berhasil atau ctx selesai

	err := backoff.RetryNotify(func() error {
		return h(ctx, m)
	}, backoff.WithContext(eb, ctx), func(err error, next time.Duration) {
		c.log.Error("handler failed, retrying",
			zap.Int("worker", worker),
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
	return err == nil
}
