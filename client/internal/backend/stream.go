package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/middleware"
)

// message is one server-sent event.
type message struct {
	Event string
	Data  string
}

// eventReader splits a text/event-stream body into messages.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	return &eventReader{scanner: scanner}
}

// Next returns the next complete message. Comments and heartbeats are
// skipped. It returns io.EOF when the stream ends.
func (r *eventReader) Next() (message, error) {
	var (
		msg  message
		data []string
		seen bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if line == "" {
			if !seen {
				continue
			}
			msg.Data = strings.Join(data, "\n")
			return msg, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			msg.Event = value
			seen = true
		case "data":
			data = append(data, value)
			seen = true
		}
	}
	if err := r.scanner.Err(); err != nil {
		return message{}, err
	}
	return message{}, io.EOF
}

// follow opens the change stream at path and calls fn for every event on a
// new goroutine until ctx is cancelled or the stream ends. It returns once
// the gateway has confirmed the stream, so nothing published afterwards is
// missed. The returned channel is closed when the reader exits.
func (c *Client) follow(ctx context.Context, path string, fn func(events.Event)) (<-chan struct{}, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}

	reader := newEventReader(resp.Body)
	first, err := reader.Next()
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("change stream closed before it was ready: %w", err)
	}
	if first.Event != middleware.ReadyEvent {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected first stream event %q", first.Event)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer resp.Body.Close()
		for {
			msg, err := reader.Next()
			if err != nil {
				if ctx.Err() == nil {
					slog.WarnContext(ctx, "change stream ended", "path", path, "error", err)
				}
				return
			}
			var event events.Event
			if err := json.Unmarshal([]byte(msg.Data), &event); err != nil {
				slog.WarnContext(ctx, "skipping malformed change event", "path", path, "error", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			fn(event)
		}
	}()
	return done, nil
}
