package events

import (
	"context"
	"sync"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/domain"
	"github.com/fathima-sithara/messaging-service/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BusWriter is the producer slice the publisher needs. *kafka.Producer satisfies it.
type BusWriter interface {
	Publish(ctx context.Context, key string, v interface{}) error
}

// Publisher puts lifecycle events on the bus, keyed by conversation so a
// consumer group sees each conversation in submission order. Publication is
// non-blocking for the caller: events go through a single worker goroutine,
// which keeps the submission order that per-event goroutines would lose.
// A failed publish is logged and counted, never rolled back.
type Publisher struct {
	writer  BusWriter
	log     *zap.SugaredLogger
	queue   chan *domain.Event
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

func NewPublisher(writer BusWriter, log *zap.SugaredLogger) *Publisher {
	p := &Publisher{
		writer:  writer,
		log:     log,
		queue:   make(chan *domain.Event, 1024),
		timeout: 5 * time.Second,
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Publisher) Publish(eventType domain.EventType, msg *domain.Message) {
	ev := &domain.Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		ConversationID: msg.ConversationID,
		Message:        msg,
		OccurredAt:     time.Now().UTC(),
	}
	select {
	case p.queue <- ev:
	default:
		metrics.EventsFailed.Inc()
		p.log.Errorw("event queue full, dropping event",
			"type", ev.Type, "message_id", msg.ID, "conversation_id", ev.ConversationID)
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.writer.Publish(ctx, ev.ConversationID, ev)
		cancel()
		if err != nil {
			metrics.EventsFailed.Inc()
			p.log.Errorw("event publish failed",
				"type", ev.Type, "conversation_id", ev.ConversationID, "err", err)
			continue
		}
		metrics.EventsPublished.Inc()
	}
}

// Close drains queued events and stops the worker.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
}
