package interfaces

import (
	"context"
	"time"
)

// QueueMessage is one unit of work on the Redis queue
type QueueMessage struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // Handler key, e.g. "file_analysis"
	Payload   map[string]interface{} `json:"payload"`
	Tries     int                    `json:"tries"`
	MaxTries  int                    `json:"max_tries"`
	CreatedAt time.Time              `json:"created_at"`
}

// Queue is the Redis-backed work queue with a dead-letter set
type Queue interface {
	Enqueue(ctx context.Context, msg *QueueMessage) error
	// Dequeue pops the oldest message, nil when the queue is empty
	Dequeue(ctx context.Context) (*QueueMessage, error)
	// Retry requeues with an incremented try count, or moves the message to
	// the dead-letter set once max tries is reached
	Retry(ctx context.Context, msg *QueueMessage, cause error) error
	Depth(ctx context.Context) (int64, error)
	DeadLetterDepth(ctx context.Context) (int64, error)
}

// MessageHandler processes one dequeued message
type MessageHandler func(ctx context.Context, msg *QueueMessage) error
