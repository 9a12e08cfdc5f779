package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// payloadField is the stream entry field holding the JSON event.
const payloadField = "event"

type Handler func(ctx context.Context, event Event) error

// Subscriber consumes a stream as part of a consumer group: each event is
// handled by exactly one replica and acknowledged once handled.
type Subscriber struct {
	client        *redis.Client
	group         string
	consumer      string
	stream        string
	handler       Handler
	batchSize     int64
	blockDuration time.Duration
}

type SubscriberConfig struct {
	Group         string
	Consumer      string
	Stream        string
	Handler       Handler
	BatchSize     int64
	BlockDuration time.Duration
}

func NewSubscriber(client *redis.Client, config SubscriberConfig) *Subscriber {
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}
	if config.BlockDuration == 0 {
		config.BlockDuration = 5 * time.Second
	}

	return &Subscriber{
		client:        client,
		group:         config.Group,
		consumer:      config.Consumer,
		stream:        config.Stream,
		handler:       config.Handler,
		batchSize:     config.BatchSize,
		blockDuration: config.BlockDuration,
	}
}

// Start blocks until ctx is cancelled. Entries this consumer read but never
// acknowledged before a restart are handled first.
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	slog.InfoContext(ctx, "subscriber started", "stream", s.stream, "group", s.group, "consumer", s.consumer)

	// An id cursor walks our pending entries, ">" asks for new ones.
	cursor := "0"
	for ctx.Err() == nil {
		last, err := s.readMessages(ctx, cursor)
		if err != nil {
			if ctx.Err() == nil {
				slog.WarnContext(ctx, "error reading messages", "stream", s.stream, "error", err)
				sleep(ctx, time.Second)
			}
			continue
		}
		switch {
		case cursor == ">":
		case last == "":
			cursor = ">"
		default:
			cursor = last
		}
	}
	slog.InfoContext(ctx, "subscriber stopping", "stream", s.stream)
	return ctx.Err()
}

// readMessages handles one batch and returns the id of its last entry.
// Entries whose handler fails stay pending and are retried on restart.
func (s *Subscriber) readMessages(ctx context.Context, cursor string) (string, error) {
	args := &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, cursor},
		Count:    s.batchSize,
		Block:    -1,
	}
	if cursor == ">" {
		args.Block = s.blockDuration
	}
	streams, err := s.client.XReadGroup(ctx, args).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read from stream: %w", err)
	}

	last := ""
	for _, stream := range streams {
		for _, message := range stream.Messages {
			last = message.ID
			event, err := decodeMessage(message)
			if err == nil {
				err = s.handler(ctx, event)
			}
			if err != nil {
				slog.WarnContext(ctx, "failed to process message", "id", message.ID, "error", err)
				continue
			}
			if err := s.client.XAck(ctx, s.stream, s.group, message.ID).Err(); err != nil {
				slog.WarnContext(ctx, "failed to ack message", "id", message.ID, "error", err)
			}
		}
	}
	return last, nil
}

func decodeMessage(message redis.XMessage) (Event, error) {
	raw, ok := message.Values[payloadField].(string)
	if !ok {
		return Event{}, fmt.Errorf("invalid message format")
	}
	var event Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	event.ID = message.ID
	return event, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
