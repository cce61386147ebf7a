package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// stream writes an SSE response: first (if any), then every event from ch
// until it closes, followed by a "done" event. It returns early when the
// client disconnects. kind labels the stream metrics.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, kind string, ch <-chan string, first ...string) {
	streamsOpen.WithLabelValues(kind).Inc()
	defer streamsOpen.WithLabelValues(kind).Dec()
	sent := streamEventsTotal.WithLabelValues(kind)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	for _, ev := range first {
		if err := writeSSEData(w, ev); err != nil {
			return
		}
		sent.Inc()
	}
	flush()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				flush()
				return
			}
			if err := writeSSEData(w, ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			sent.Inc()
			flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEData writes an SSE data event. Multi-line strings are split so that
// each segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, data string) error {
	for seg := range strings.SplitSeq(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
