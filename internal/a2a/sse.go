package a2a

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSEWriter writes Server-Sent Events to an http.ResponseWriter.
// Call Init once before writing any events to set the required headers.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSEWriter wrapping w. Without http.Flusher
// support events may be buffered.
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	f, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: f}
}

// Init sets the SSE response headers and flushes them to the client.
func (sw *SSEWriter) Init() {
	h := sw.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	sw.w.WriteHeader(http.StatusOK)
	sw.flush()
}

// WriteEvent writes event as a single "data: {json}" frame and flushes.
func (sw *SSEWriter) WriteEvent(event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sse: marshal event: %w", err)
	}
	return sw.frame(data)
}

// WriteError writes a terminal error frame.
func (sw *SSEWriter) WriteError(cause error) error {
	data, err := json.Marshal(StreamEvent{Error: cause.Error()})
	if err != nil {
		return fmt.Errorf("sse: marshal error: %w", err)
	}
	return sw.frame(data)
}

func (sw *SSEWriter) frame(data []byte) error {
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("sse: write event: %w", err)
	}
	sw.flush()
	return nil
}

func (sw *SSEWriter) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// maxFrameSize bounds a single SSE line. Stage outputs carry whole HTML
// documents, so the scanner default is too small.
const maxFrameSize = 4 << 20

// ReadEvents reads SSE events from body and delivers them on the returned
// channel. The channel is closed when the body is exhausted, a read error
// occurs or ctx is cancelled; body is closed when reading finishes.
//
// "data:" lines are joined with newlines until a blank line ends the event.
// Comment lines and other fields are ignored. Malformed JSON and server error
// frames produce a StreamEvent with Err set and reading continues.
func ReadEvents(ctx context.Context, body io.ReadCloser) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
		var data strings.Builder

		flush := func() bool {
			if data.Len() == 0 {
				return true
			}
			ok := deliver(ctx, ch, data.String())
			data.Reset()
			return ok
		}

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := scanner.Text()
			switch {
			case line == "":
				if !flush() {
					return
				}
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case ch <- StreamEvent{Err: fmt.Errorf("sse: read: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
		flush()
	}()
	return ch
}

// deliver decodes raw and sends it on ch. It reports false when ctx ended.
func deliver(ctx context.Context, ch chan<- StreamEvent, raw string) bool {
	var ev StreamEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		ev = StreamEvent{Err: fmt.Errorf("sse: unmarshal event: %w", err)}
	}
	ev.streamError()
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
