package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/novap2p/novap2p/shared/events"
)

// ReadyEvent is the first server-sent event of every change stream. Clients
// may treat the subscription as live once they have received it.
const ReadyEvent = "ready"

const (
	streamBuffer    = 64
	streamHeartbeat = 15 * time.Second
)

// StreamEvents relays stream to the client as server-sent events until the
// client disconnects. keep filters events; nil keeps all of them.
func StreamEvents(c *gin.Context, feed *events.Feed, stream string, keep func(events.Event) bool) {
	ctx := c.Request.Context()
	ch := make(chan events.Event, streamBuffer)
	sub, err := feed.Subscribe(ctx, stream, func(e events.Event) {
		if keep != nil && !keep(e) {
			return
		}
		select {
		case ch <- e:
		default:
			// The client reloads on any event, so one dropped event
			// behind a full buffer loses nothing.
			slog.WarnContext(ctx, "change stream client is slow, dropping event", "stream", stream, "id", e.ID)
		}
	})
	if err != nil {
		slog.ErrorContext(ctx, "change stream unavailable", "stream", stream, "error", err)
		RespondWithError(c, http.StatusServiceUnavailable, "Change feed unavailable")
		return
	}
	defer sub.Unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent(ReadyEvent, gin.H{"stream": stream})
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e := <-ch:
			c.SSEvent(e.Type, e)
			return true
		case <-heartbeat.C:
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		}
	})
}
