// internal/solver/parse_test.go
package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/chatrelay/api/schemas"
)

func TestParseGrid(t *testing.T) {
	centerOnly := schemas.ChallengeGrid{{0, 0, 0}, {0, 1, 0}, {0, 0, 0}}

	t.Run("bare JSON matrix", func(t *testing.T) {
		g, ok := ParseGrid(`[[0,0,0],[0,1,0],[0,0,0]]`)
		require.True(t, ok)
		assert.Equal(t, centerOnly, *g)
	})

	t.Run("markdown fenced matrix", func(t *testing.T) {
		g, ok := ParseGrid("```json\n[[0,0,0],[0,1,0],[0,0,0]]\n```")
		require.True(t, ok)
		assert.Equal(t, centerOnly, *g)
	})

	t.Run("object with conventional field", func(t *testing.T) {
		for _, field := range []string{"grid", "matrix", "answer", "result", "cells"} {
			g, ok := ParseGrid(`{"` + field + `": [[1,0,0],[0,0,0],[0,0,1]]}`)
			require.True(t, ok, "field %q should be recognized", field)
			assert.Equal(t, []schemas.GridCell{{Row: 0, Col: 0}, {Row: 2, Col: 2}}, g.Marked())
		}
	})

	t.Run("object with unconventional 3-length array field", func(t *testing.T) {
		g, ok := ParseGrid(`{"selection": [[0,1,0],[0,0,0],[0,0,0]]}`)
		require.True(t, ok)
		assert.Equal(t, []schemas.GridCell{{Row: 0, Col: 1}}, g.Marked())
	})

	t.Run("matrix embedded in prose", func(t *testing.T) {
		reply := "Sure! The target appears in these tiles: [[0,0,1],[0,0,0],[0,0,0]] as requested."
		g, ok := ParseGrid(reply)
		require.True(t, ok)
		assert.Equal(t, []schemas.GridCell{{Row: 0, Col: 2}}, g.Marked())
	})

	t.Run("boolean and string cells coerce", func(t *testing.T) {
		g, ok := ParseGrid(`[[true,false,false],["0","1","0"],[0,0,0]]`)
		require.True(t, ok)
		assert.Equal(t, []schemas.GridCell{{Row: 0, Col: 0}, {Row: 1, Col: 1}}, g.Marked())
	})

	t.Run("rejects wrong shape", func(t *testing.T) {
		_, ok := ParseGrid(`[[1,0],[0,1]]`)
		assert.False(t, ok)

		_, ok = ParseGrid(`[[1,0,0],[0,1,0]]`)
		assert.False(t, ok)

		_, ok = ParseGrid(`[[1,0,0,0],[0,1,0,0],[0,0,1,0]]`)
		assert.False(t, ok)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, ok := ParseGrid("I cannot see a grid in this image.")
		assert.False(t, ok)

		_, ok = ParseGrid("")
		assert.False(t, ok)

		_, ok = ParseGrid(`{"grid": "top left"}`)
		assert.False(t, ok)
	})

	t.Run("non-numeric cells reject", func(t *testing.T) {
		_, ok := ParseGrid(`[["a","b","c"],[0,0,0],[0,0,0]]`)
		assert.False(t, ok)
	})
}
