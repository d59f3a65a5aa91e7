package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/skypass/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client writes SSE frames to one connection.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger

	messagesSent int64
	bytesSent    int64
}

// extendDeadline pushes the write deadline out before each write; the
// server-wide WriteTimeout would otherwise cut long-lived streams.
func (c *client) extendDeadline() {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
}

// sendJSON writes v as an SSE event of the given type:
//
//	event: <event>
//	data: <json>
func (c *client) sendJSON(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}

	c.extendDeadline()
	n, err := fmt.Fprintf(c.w, "event: %s\ndata: %s\n\n", event, data)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	c.flusher.Flush()
	c.messagesSent++
	c.bytesSent += int64(n)
	metrics.RecordStreamWrite(n, true)
	return nil
}

// sendRetry tells the client how long to wait before reconnecting.
func (c *client) sendRetry(d time.Duration) error {
	n, err := fmt.Fprintf(c.w, "retry: %d\n\n", d.Milliseconds())
	if err != nil {
		return fmt.Errorf("retry write: %w", err)
	}
	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.RecordStreamWrite(n, false)
	return nil
}

// sendKeepalive writes an SSE comment line.
func (c *client) sendKeepalive() error {
	c.extendDeadline()
	n, err := fmt.Fprint(c.w, ":\n\n")
	if err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}

	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.RecordStreamWrite(n, false)
	return nil
}
