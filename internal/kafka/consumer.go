package kafka

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r       messageReader
	workers int
}

func NewConsumer(brokers []string, group string, topics []string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers)
}

func newConsumer(r messageReader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

// Start dispatches fetched messages to a worker pool and commits each one
// only after its handler succeeds. Returns nil on ctx cancellation.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	var wg sync.WaitGroup

	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					log.WithError(err).WithFields(log.Fields{
						"worker": id, "topic": m.Topic, "offset": m.Offset,
					}).Warn("handler failed, offset not committed")
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					log.WithError(err).WithField("worker", id).Warn("commit failed")
				}
			}
		}(i)
	}

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			close(jobs)
			wg.Wait()
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil
		}
	}
}
