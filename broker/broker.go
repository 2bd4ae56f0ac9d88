// Package broker abstracts the message broker used for the proofing
// round-trip. Kafka backs it in deployment, an in-process broker backs it
// in tests and local runs.
package broker

import (
	"context"

	"github.com/cockroachdb/errors"
)

// ErrClosed is returned by operations on a closed broker or subscription.
var ErrClosed = errors.New("broker: closed")

// Message is one broker record.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Publisher writes messages to topics.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscription yields messages from one topic in arrival order.
type Subscription interface {
	Next(ctx context.Context) (Message, error)
	Close() error
}

// Subscriber opens subscriptions. A subscription only sees messages
// published after Subscribe returns.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Broker is a Publisher and Subscriber sharing one connection.
type Broker interface {
	Publisher
	Subscriber
	Close() error
}
