// internal/upstream/decoder_test.go
package upstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(d *Decoder, input []byte, step int) []Event {
	var events []Event
	for i := 0; i < len(input); i += step {
		end := i + step
		if end > len(input) {
			end = len(input)
		}
		events = append(events, d.Feed(input[i:end])...)
	}
	return events
}

func TestDecoderBasicStream(t *testing.T) {
	stream := []byte("" +
		"data: {\"action\":\"success\",\"message\":\"Hello\"}\n" +
		"data: {\"action\":\"success\",\"message\":\", world\"}\n" +
		"data: [DONE]\n")

	var d Decoder
	events := d.Feed(stream)

	require.Len(t, events, 3)
	assert.Equal(t, Event{Kind: EventToken, Text: "Hello"}, events[0])
	assert.Equal(t, Event{Kind: EventToken, Text: ", world"}, events[1])
	assert.Equal(t, EventEnd, events[2].Kind)
	assert.True(t, d.Done())
}

func TestDecoderChunkBoundaryIdempotence(t *testing.T) {
	stream := []byte("" +
		"data: {\"action\":\"success\",\"message\":\"alpha\"}\r\n" +
		": keep-alive\n" +
		"\n" +
		"data: {\"action\":\"success\",\"message\":\"beta\"}\n" +
		"data: [DONE]\n")

	var whole Decoder
	expected := whole.Feed(stream)

	// Feeding one byte at a time must produce the identical event sequence.
	var d Decoder
	assert.Equal(t, expected, collect(&d, stream, 1))

	// And at an arbitrary odd chunk size.
	var d7 Decoder
	assert.Equal(t, expected, collect(&d7, stream, 7))
}

func TestDecoderChallengeEvent(t *testing.T) {
	t.Run("typed challenge error", func(t *testing.T) {
		var d Decoder
		events := d.Feed([]byte("data: {\"action\":\"error\",\"type\":\"ERR_CHALLENGE\",\"status\":418}\n"))
		require.Len(t, events, 1)
		assert.Equal(t, EventChallengeRequired, events[0].Kind)
		assert.True(t, d.Done())
	})

	t.Run("challenge object present", func(t *testing.T) {
		var d Decoder
		events := d.Feed([]byte("data: {\"action\":\"error\",\"challenge\":{\"cd\":\"x\"}}\n"))
		require.Len(t, events, 1)
		assert.Equal(t, EventChallengeRequired, events[0].Kind)
	})

	t.Run("non-challenge error produces no event", func(t *testing.T) {
		var d Decoder
		events := d.Feed([]byte("data: {\"action\":\"error\",\"type\":\"ERR_OTHER\"}\n"))
		assert.Empty(t, events)
		assert.False(t, d.Done())
	})
}

func TestDecoderSkipsNoise(t *testing.T) {
	var d Decoder
	events := d.Feed([]byte("" +
		"\n" +
		": ping\n" +
		"event: message\n" +
		"data: not-json\n" +
		"data: {\"action\":\"success\",\"message\":\"ok\"}\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].Text)
}

func TestDecoderIgnoresInputAfterTerminal(t *testing.T) {
	var d Decoder
	d.Feed([]byte("data: [DONE]\n"))
	events := d.Feed([]byte("data: {\"action\":\"success\",\"message\":\"late\"}\n"))
	assert.Empty(t, events)
}

func TestDecoderFlush(t *testing.T) {
	t.Run("unterminated final token", func(t *testing.T) {
		var d Decoder
		assert.Empty(t, d.Feed([]byte("data: {\"action\":\"success\",\"message\":\"tail\"}")))
		events := d.Flush()
		require.Len(t, events, 1)
		assert.Equal(t, Event{Kind: EventToken, Text: "tail"}, events[0])
	})

	t.Run("unterminated done sentinel", func(t *testing.T) {
		var d Decoder
		d.Feed([]byte("data: [DONE]"))
		events := d.Flush()
		require.Len(t, events, 1)
		assert.Equal(t, EventEnd, events[0].Kind)
		assert.True(t, d.Done())
	})

	t.Run("empty buffer is a no-op", func(t *testing.T) {
		var d Decoder
		assert.Empty(t, d.Flush())
	})

	t.Run("after terminal is a no-op", func(t *testing.T) {
		var d Decoder
		d.Feed([]byte("data: [DONE]\ndata: {\"action\":\"success\",\"message\":\"late\"}"))
		assert.Empty(t, d.Flush())
	})
}

func TestDecoderHoldsPartialLine(t *testing.T) {
	var d Decoder
	assert.Empty(t, d.Feed([]byte("data: {\"action\":\"success\",")))
	events := d.Feed([]byte("\"message\":\"joined\"}\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "joined", events[0].Text)
}
