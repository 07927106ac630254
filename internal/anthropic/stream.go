package anthropic

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// eventKind is the closed set of stream event classifications this
// adapter distinguishes. Everything outside content block start/delta
// contributes no fragments.
type eventKind int

const (
	eventOther eventKind = iota
	eventContentBlockStart
	eventContentBlockDelta
	eventError
)

// streamEvent mirrors the Messages API SSE data payload. Only the
// fields needed for classification are decoded.
type streamEvent struct {
	Type         string `json:"type"`
	ContentBlock struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content_block"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// classify maps a decoded event onto the adapter's event union and
// extracts the fragment text, if any.
func classify(ev streamEvent) (eventKind, string) {
	switch ev.Type {
	case "content_block_start":
		return eventContentBlockStart, ev.ContentBlock.Text
	case "content_block_delta":
		return eventContentBlockDelta, ev.Delta.Text
	case "error":
		return eventError, ""
	default:
		// message_start, message_delta, message_stop,
		// content_block_stop, ping: yield nothing.
		return eventOther, ""
	}
}

// MessageStream is a pull-based, forward-only fragment sequence over a
// streaming Messages API response. Each Next call reads from the
// vendor transport until a fragment-bearing event arrives or the
// stream closes. It is not restartable.
type MessageStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	text    string
	err     error
	done    bool
}

func newMessageStream(body io.ReadCloser) *MessageStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 256*1024)
	return &MessageStream{body: body, scanner: scanner}
}

// Next advances to the next text fragment. It returns false once the
// vendor stream closes or fails; consult Err afterwards.
func (s *MessageStream) Next() bool {
	if s.done {
		return false
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")

		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			slog.Warn("skipping malformed stream event", "error", err)
			continue
		}

		switch kind, text := classify(ev); kind {
		case eventContentBlockStart, eventContentBlockDelta:
			s.text = text
			return true
		case eventError:
			s.fail(fmt.Errorf("anthropic stream error (%s): %s", ev.Error.Type, ev.Error.Message))
			return false
		default:
			continue
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.fail(fmt.Errorf("read anthropic stream: %w", err))
		return false
	}

	s.done = true
	_ = s.body.Close()
	return false
}

// Text returns the fragment produced by the last successful Next.
func (s *MessageStream) Text() string {
	return s.text
}

// Err reports a mid-stream failure, if any. Such failures are not
// collapsed into "Error: ..." results; they belong to the caller.
func (s *MessageStream) Err() error {
	return s.err
}

// Close releases the underlying response body. Safe to call more than
// once and after exhaustion.
func (s *MessageStream) Close() error {
	s.done = true
	return s.body.Close()
}

func (s *MessageStream) fail(err error) {
	s.err = err
	s.done = true
	_ = s.body.Close()
}
