// Package fanout publishes derived status transitions to Kafka so other
// displays and reporting jobs can follow the bar without polling.
package fanout

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/lorenzobigazzi0/app/internal/order"
	"github.com/lorenzobigazzi0/app/internal/store"
)

// DefaultTopic receives StatusChanged messages when none is configured.
const DefaultTopic = "barsync.order-status"

// DefaultQueueSize bounds the transitions waiting for the producer.
const DefaultQueueSize = 256

// StatusChanged is the message body. From is empty for a newly seen order.
type StatusChanged struct {
	OrderID    string       `json:"order_id"`
	Table      int          `json:"table"`
	From       order.Status `json:"from,omitempty"`
	To         order.Status `json:"to"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Transition derives the status change carried by c, if any. Removals and
// replacements that keep the derived status produce nothing.
func Transition(c store.Change, at time.Time) (StatusChanged, bool) {
	if c.After == nil {
		return StatusChanged{}, false
	}
	msg := StatusChanged{
		OrderID:    c.After.ID,
		Table:      c.After.Table,
		To:         order.Derive(*c.After),
		OccurredAt: at.UTC(),
	}
	if c.Before != nil {
		msg.From = order.Derive(*c.Before)
		if msg.From == msg.To {
			return StatusChanged{}, false
		}
	}
	return msg, true
}

// Publisher sends StatusChanged messages with a synchronous producer.
//
// OnChange runs on the store's caller and never waits for the broker: it
// queues the transition for a single sender goroutine and drops it when the
// queue is full. Messages keep their enqueue order.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time

	mu     sync.Mutex
	queue  chan StatusChanged
	closed bool
	wg     sync.WaitGroup

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewPublisher connects to brokers.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Timeout = 5 * time.Second
	config.Producer.RequiredAcks = sarama.WaitForLocal
	prod, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewWithProducer(prod, topic, time.Now), nil
}

// NewWithProducer wraps an existing producer and starts the sender. Used by
// tests with sarama/mocks.
func NewWithProducer(p sarama.SyncProducer, topic string, now func() time.Time) *Publisher {
	return newPublisher(p, topic, now, DefaultQueueSize)
}

func newPublisher(p sarama.SyncProducer, topic string, now func() time.Time, queueSize int) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	pub := &Publisher{
		producer: p,
		topic:    topic,
		now:      now,
		queue:    make(chan StatusChanged, queueSize),
	}
	pub.wg.Add(1)
	go pub.send()
	return pub
}

func (p *Publisher) send() {
	defer p.wg.Done()
	for msg := range p.queue {
		if err := p.Publish(msg); err != nil {
			slog.Warn("status fan-out failed", "order_id", msg.OrderID, "to", msg.To, "error", err)
		}
	}
}

// Attach subscribes the publisher to s.
func (p *Publisher) Attach(s *store.Store) {
	s.Subscribe(p.OnChange)
}

// OnChange queues the transition in c for publishing. Failures are logged
// by the sender only.
func (p *Publisher) OnChange(c store.Change) {
	msg, ok := Transition(c, p.now())
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- msg:
	default:
		p.dropped.Add(1)
		slog.Warn("status fan-out queue full, dropping", "order_id", msg.OrderID, "to", msg.To)
	}
}

// Publish sends one message keyed by order id, so a consumer sees each
// order's transitions in partition order.
func (p *Publisher) Publish(msg StatusChanged) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode status change: %w", err)
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.OrderID),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		p.failed.Add(1)
		return err
	}
	p.published.Add(1)
	slog.Debug("status published",
		"order_id", msg.OrderID,
		"from", msg.From,
		"to", msg.To,
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// Published returns how many messages were sent successfully.
func (p *Publisher) Published() int64 {
	return p.published.Load()
}

// Failed returns how many sends failed.
func (p *Publisher) Failed() int64 {
	return p.failed.Load()
}

// Dropped returns how many transitions were discarded on a full queue.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close sends what is still queued, then closes the producer. Later
// changes are ignored.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	return p.producer.Close()
}
