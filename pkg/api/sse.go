package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meepleai/meepleai/pkg/agents"
)

// serveSSE writes a typed event stream in server-sent-event wire format:
// an `event:` line, a `data:` line with the JSON payload, and a blank
// line terminator, flushed per event.
func serveSSE(c *gin.Context, events <-chan agents.Event) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		slog.Error("Response writer does not support flushing, SSE unavailable")
		return
	}

	for ev := range events {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			slog.Error("SSE payload not serializable", "event", ev.Type, "error", err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			// Client went away; the engine stops via request context
			// cancellation.
			return
		}
		flusher.Flush()
	}
}
