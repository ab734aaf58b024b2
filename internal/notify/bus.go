// Package notify announces freshly logged events to downstream consumers
// over Redis Streams. Announcements are fire-and-forget: a slow or absent
// consumer never blocks or fails event logging.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/hindsight/internal/event"
)

const (
	// Stream is the Redis stream new events are announced on.
	Stream = "hindsight:events"

	announceBuffer = 256
)

// Bus publishes event announcements to Redis Streams through a single
// writer goroutine fed by a bounded buffer.
type Bus struct {
	rdb    *redis.Client
	queue  chan *event.Event
	done   chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewBus connects to Redis and starts the writer goroutine.
func NewBus(redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	b := &Bus{
		rdb:    rdb,
		queue:  make(chan *event.Event, announceBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	b.wg.Add(1)
	go b.run()
	return b, nil
}

// Announce queues an event for publication. It never blocks; when the
// buffer is full the announcement is dropped.
func (b *Bus) Announce(e *event.Event) {
	select {
	case b.queue <- e:
	default:
		b.logger.Debug("announcement dropped, buffer full", zap.String("id", e.ID))
	}
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		select {
		case e := <-b.queue:
			b.publish(e)
		case <-b.done:
			// Drain what is already queued before shutting down.
			for {
				select {
				case e := <-b.queue:
					b.publish(e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) publish(e *event.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Warn("announcement not serializable", zap.String("id", e.ID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		b.logger.Warn("announcement publish failed", zap.String("id", e.ID), zap.Error(err))
		return
	}

	b.logger.Debug("event announced",
		zap.String("id", e.ID),
		zap.String("type", e.Type))
}

// Subscribe listens for announcements on the event stream. Returns a channel
// that emits events. Cancel the context to stop.
func (b *Bus) Subscribe(ctx context.Context) <-chan *event.Event {
	ch := make(chan *event.Event, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{Stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var e event.Event
					if json.Unmarshal([]byte(data), &e) == nil {
						ch <- &e
					}
				}
			}
		}
	}()

	return ch
}

// Close stops the writer goroutine, flushes queued announcements, and shuts
// down the Redis connection.
func (b *Bus) Close() error {
	close(b.done)
	b.wg.Wait()
	return b.rdb.Close()
}
