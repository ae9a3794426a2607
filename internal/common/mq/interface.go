// Package mq publishes service events to a message broker.
package mq

import (
	"context"
	"time"
)

// Producer delivers messages to a topic.
type Producer interface {
	Publish(ctx context.Context, topic string, message *Message) error
	Close() error
}

// Message is one event. ID is also the partition key, so events for the same
// execution land on the same partition.
type Message struct {
	ID        string
	Body      []byte
	Headers   map[string]string
	Timestamp time.Time
}

func NewMessage(body []byte) *Message {
	return &Message{Body: body, Timestamp: time.Now()}
}

func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]string, 1)
	}
	m.Headers[key] = value
}

func (m *Message) Header(key string) string {
	return m.Headers[key]
}
