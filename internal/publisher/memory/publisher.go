// Package memory provides an in-process publisher for tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is a published event captured in memory.
type Message struct {
	Topic string
	Data  []byte
}

// Publisher records published messages instead of sending them anywhere.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
	next     int

	// PublishErr, when set, is returned by Publish.
	PublishErr error
}

// New returns an empty in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish stores the JSON-encoded payload and returns a synthetic message ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PublishErr != nil {
		return "", p.PublishErr
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("memory publisher: marshal payload: %w", err)
	}

	p.next++
	p.messages = append(p.messages, Message{Topic: topic, Data: data})
	return fmt.Sprintf("mem-%d", p.next), nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
