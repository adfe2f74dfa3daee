package worker

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"
)

// LocalPublisher delivers messages to in-process handlers. It stands in for
// the nsq producer when no queue is configured. Publish runs the handler
// synchronously and returns its error; messages are never requeued.
type LocalPublisher struct {
	mu       sync.RWMutex
	handlers map[string]nsq.Handler
}

func NewLocalPublisher() *LocalPublisher {
	return &LocalPublisher{handlers: map[string]nsq.Handler{}}
}

func (p *LocalPublisher) Register(topic string, h nsq.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = h
}

func (p *LocalPublisher) Publish(topic string, body []byte) error {
	p.mu.RLock()
	h, ok := p.handlers[topic]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler registered for topic %q", topic)
	}

	m := nsq.NewMessage(nsq.MessageID(uuid.New()), body)
	m.Attempts = 1
	m.Timestamp = time.Now().UnixNano()
	return h.HandleMessage(m)
}
