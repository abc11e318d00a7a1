// internal/upstream/decoder.go
package upstream

import (
	"bytes"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventKind tags one decoded stream event.
type EventKind int

const (
	// EventToken carries one text fragment of the answer.
	EventToken EventKind = iota
	// EventChallengeRequired means the stream ended with a challenge-class
	// error; the request must go through verification.
	EventChallengeRequired
	// EventEnd is the explicit end-of-stream sentinel.
	EventEnd
)

// Event is one decoded line of the upstream stream. Token ordering matters;
// fragments are concatenated in arrival order.
type Event struct {
	Kind EventKind
	Text string
}

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// streamPayload is the wire shape of one data line.
type streamPayload struct {
	Action    string              `json:"action"`
	Type      string              `json:"type"`
	Message   string              `json:"message"`
	Status    int                 `json:"status"`
	Challenge jsoniter.RawMessage `json:"challenge"`
}

// challengeClass reports whether a payload is the challenge-class error.
func (p *streamPayload) challengeClass() bool {
	if p.Action != "error" {
		return false
	}
	return p.Type == "ERR_CHALLENGE" || len(p.Challenge) > 0
}

// Decoder incrementally decodes the upstream event stream. Input arrives in
// arbitrary chunks; a partial trailing line is buffered until its newline
// shows up, so splitting the stream at any byte boundary produces the same
// event sequence.
type Decoder struct {
	buf  bytes.Buffer
	done bool
}

// Feed consumes one chunk and returns the events completed by it. After an
// EventEnd or EventChallengeRequired, further input is ignored.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}
	d.buf.Write(chunk)

	var events []Event
	for {
		raw := d.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			break
		}
		line := string(raw[:idx])
		d.buf.Next(idx + 1)

		ev, ok := decodeLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Kind != EventToken {
			d.done = true
			break
		}
	}
	return events
}

// Flush decodes a trailing line that was never newline-terminated. Call once
// when the input is exhausted; a final token would otherwise be lost.
func (d *Decoder) Flush() []Event {
	if d.done || d.buf.Len() == 0 {
		return nil
	}
	line := d.buf.String()
	d.buf.Reset()

	ev, ok := decodeLine(line)
	if !ok {
		return nil
	}
	if ev.Kind != EventToken {
		d.done = true
	}
	return []Event{ev}
}

// Done reports whether a terminal event has been seen.
func (d *Decoder) Done() bool {
	return d.done
}

// decodeLine parses a single stream line. Blank lines and keep-alive comment
// lines produce no event.
func decodeLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" || strings.HasPrefix(line, ":") {
		return Event{}, false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" {
		return Event{}, false
	}
	if payload == doneSentinel {
		return Event{Kind: EventEnd}, true
	}

	var p streamPayload
	if err := json.UnmarshalFromString(payload, &p); err != nil {
		// Unparseable lines are skipped rather than failing the stream.
		return Event{}, false
	}
	if p.challengeClass() {
		return Event{Kind: EventChallengeRequired}, true
	}
	if p.Message != "" {
		return Event{Kind: EventToken, Text: p.Message}, true
	}
	return Event{}, false
}
