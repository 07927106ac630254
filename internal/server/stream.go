package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"anthropic-manifold/internal/observability"
	"anthropic-manifold/internal/pipeline"
)

// fragmentPayload is one SSE data record relayed to the client.
type fragmentPayload struct {
	Content string `json:"content"`
}

// writeFragmentStream relays a pipeline fragment stream to the client
// as server-sent events, one data record per fragment, terminated by a
// [DONE] sentinel. A failure after the stream has begun cannot change
// the response status; it is logged and the relay ends without the
// sentinel.
func writeFragmentStream(c echo.Context, stream pipeline.Stream) error {
	defer stream.Close()

	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	observability.StreamsActive.Inc()
	defer observability.StreamsActive.Dec()

	for stream.Next() {
		if err := writeSSEData(writer, fragmentPayload{Content: stream.Text()}); err != nil {
			slog.Error("write stream fragment", "error", err)
			return nil
		}
		flusher.Flush()
	}

	if err := stream.Err(); err != nil {
		slog.Error("fragment stream failed mid-relay", "error", err)
		return nil
	}

	if _, err := fmt.Fprint(writer, "data: [DONE]\n\n"); err != nil {
		slog.Error("write stream sentinel", "error", err)
		return nil
	}
	flusher.Flush()

	return nil
}

func writeSSEData(w io.Writer, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}
