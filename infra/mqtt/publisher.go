package mqtt

import (
	"sync"

	"github.com/kilianp07/skybridge/core/bus"
)

// Message is a payload captured by MemoryPublisher.
type Message struct {
	Topic   string
	Payload []byte
}

// MemoryPublisher records published messages. It is a test double for
// bus.Publisher.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	// FailTopics makes Publish fail for the listed topics.
	FailTopics map[string]error
}

// NewMemoryPublisher creates an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{FailTopics: make(map[string]error)}
}

// Publish records the message or returns the configured failure.
func (m *MemoryPublisher) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailTopics[topic]; ok {
		return err
	}
	cp := append([]byte(nil), payload...)
	m.messages = append(m.messages, Message{Topic: topic, Payload: cp})
	return nil
}

// Messages returns a copy of the recorded messages, optionally filtered by
// topic.
func (m *MemoryPublisher) Messages(topic string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Message
	for _, msg := range m.messages {
		if topic == "" || msg.Topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

var _ bus.Publisher = (*MemoryPublisher)(nil)
var _ bus.Publisher = (*Connection)(nil)
