// Package event is the in-process lifecycle event bus. The scheduler core
// publishes transitions; metrics and logging subscribe. Coordination between
// processes never goes through here; that is the job table's role.
package event

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Type string

const (
	JobClaimed   Type = "job.claimed"
	JobSucceeded Type = "job.succeeded"
	JobFailed    Type = "job.failed"
	JobSkipped   Type = "job.skipped"
	JobsReaped   Type = "jobs.reaped"
)

type Event struct {
	Type      Type
	Timestamp time.Time
	Payload   any
}

// JobEvent accompanies the per-job event types.
type JobEvent struct {
	Token       string
	JobType     string
	WorkerID    string
	Attempt     int
	Recoverable bool
	FailureKind string
	SkipKind    string
}

// ReapEvent accompanies JobsReaped.
type ReapEvent struct {
	Requeued     int64
	DeadLettered int64
}

type Handler func(ctx context.Context, e Event)

// Bus fans events out to subscribers synchronously. Handlers must not block;
// anything slow belongs behind a channel on the subscriber's side.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]Handler
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[Type][]Handler)}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := b.subscribers[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).
						Str("event", string(e.Type)).
						Msg("event handler panicked")
				}
			}()
			h(ctx, e)
		}()
	}
}
