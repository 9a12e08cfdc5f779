package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Subscription is a live change-feed registration. Unsubscribe stops
// delivery and waits for the delivering goroutine to exit, so it must not be
// called from inside the callback.
type Subscription interface {
	Unsubscribe()
}

// NewSubscription wraps a cancel func and a done channel closed by the
// delivering goroutine.
func NewSubscription(cancel context.CancelFunc, done <-chan struct{}) Subscription {
	return &subscription{cancel: cancel, done: done}
}

type subscription struct {
	cancel context.CancelFunc
	done   <-chan struct{}
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
	<-s.done
}

// Feed fans a stream out to every follower, unlike Subscriber where a
// consumer group splits the stream between replicas.
type Feed struct {
	client *redis.Client
	block  time.Duration
}

func NewFeed(client *redis.Client) *Feed {
	return &Feed{client: client, block: 5 * time.Second}
}

// WithBlock sets how long a single read waits for new entries. It bounds
// how long Unsubscribe can take.
func (f *Feed) WithBlock(d time.Duration) *Feed {
	return &Feed{client: f.client, block: d}
}

// Follow delivers every event appended to stream after the call until ctx
// is cancelled. It returns nil on cancellation.
func (f *Feed) Follow(ctx context.Context, stream string, fn func(Event)) error {
	lastID, err := f.tail(ctx, stream)
	if err != nil {
		return err
	}
	f.follow(ctx, stream, lastID, fn)
	return nil
}

// Subscribe is Follow on its own goroutine. The stream position is fixed
// before Subscribe returns, so no event appended afterwards is missed.
func (f *Feed) Subscribe(ctx context.Context, stream string, fn func(Event)) (Subscription, error) {
	lastID, err := f.tail(ctx, stream)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.follow(ctx, stream, lastID, fn)
	}()
	return NewSubscription(cancel, done), nil
}

func (f *Feed) follow(ctx context.Context, stream, lastID string, fn func(Event)) {
	for ctx.Err() == nil {
		streams, err := f.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   100,
			Block:   f.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.WarnContext(ctx, "feed read failed", "stream", stream, "error", err)
			sleep(ctx, time.Second)
			continue
		}
		for _, s := range streams {
			for _, message := range s.Messages {
				lastID = message.ID
				event, err := decodeMessage(message)
				if err != nil {
					slog.WarnContext(ctx, "skipping malformed event", "stream", stream, "id", message.ID, "error", err)
					continue
				}
				fn(event)
			}
		}
	}
}

// tail returns the id of the newest entry, so following starts after it.
func (f *Feed) tail(ctx context.Context, stream string) (string, error) {
	msgs, err := f.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to read stream tail: %w", err)
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}
