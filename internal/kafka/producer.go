package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var (
	ErrInboxFull      = errors.New("kafka producer inbox full")
	ErrProducerClosed = errors.New("kafka producer closed")
)

// Producer buffers messages in an inbox and writes them from one goroutine.
// The topic is set per message so one producer serves every checkout topic.
// Publish never blocks: a full inbox or a closed producer drops the message.
type Producer struct {
	w            messageWriter
	inbox        chan kafka.Message
	closeCh      chan struct{}
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, buf int) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, buf)
}

func newProducer(w messageWriter, buf int) *Producer {
	return &Producer{
		w:            w,
		inbox:        make(chan kafka.Message, buf),
		closeCh:      make(chan struct{}),
		writeTimeout: 10 * time.Second,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		defer func() {
			if err := p.w.Close(); err != nil {
				log.WithError(err).Warn("kafka writer close")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				// flush sisa pesan yang sudah masuk inbox
				for {
					select {
					case m, ok := <-p.inbox:
						if !ok {
							return
						}
						p.write(m)
					default:
						return
					}
				}
			case m, ok := <-p.inbox:
				if !ok {
					return
				}
				p.write(m)
			}
		}
	}()
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		log.WithError(err).WithFields(log.Fields{"topic": m.Topic, "key": string(m.Key)}).
			Error("kafka publish failed")
	}
}

func (p *Producer) Publish(topic string, key, value []byte, headers ...kafka.Header) error {
	m := kafka.Message{
		Topic:   topic,
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.WithFields(log.Fields{"topic": topic, "key": string(key)}).Warn("publish after close, dropped")
		return ErrProducerClosed
	}
	select {
	case p.inbox <- m:
		return nil
	default:
		// broker macet: jangan tahan request path
		log.WithFields(log.Fields{"topic": topic, "key": string(key)}).Warn("kafka inbox full, dropped")
		return ErrInboxFull
	}
}

// Tutup inbox supaya goroutine nge-flush sisa pesan lalu exit rapi.
// Publish setelah Close return ErrProducerClosed.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
