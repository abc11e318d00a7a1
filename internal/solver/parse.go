// internal/solver/parse.go
package solver

import (
	"regexp"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/chatrelay/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// fencedBlockRegex extracts content wrapped in a markdown code fence.
	fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(.*?)\\s*\x60\x60\x60")

	// threeRowsRegex is the last-resort extraction of a 3-row bracketed
	// structure out of free-form prose.
	threeRowsRegex = regexp.MustCompile(`\[\s*\[[^\[\]]*\]\s*,\s*\[[^\[\]]*\]\s*,\s*\[[^\[\]]*\]\s*\]`)
)

// conventionalGridFields are the object keys models commonly put a grid
// under, tried in order.
var conventionalGridFields = []string{"grid", "matrix", "answer", "result", "cells"}

// ParseGrid extracts a 3x3 challenge grid out of a free-form model reply.
// The strategies run in order and the first success wins:
//
//  1. strip markdown code fences
//  2. direct JSON parse; a top-level array is the grid
//  3. a top-level object: conventional field names, then the first
//     array-valued field of length 3
//  4. regex extraction of a 3-row bracketed structure
//
// Anything that does not normalize to exactly 3 rows of 3 cells yields
// (nil, false); this path never fails hard.
func ParseGrid(reply string) (*schemas.ChallengeGrid, bool) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil, false
	}

	candidate := reply
	if strings.HasPrefix(reply, "```") {
		if m := fencedBlockRegex.FindStringSubmatch(reply); len(m) > 1 {
			candidate = m[1]
		}
	}

	if g, ok := parseJSONCandidate(candidate); ok {
		return g, true
	}

	// The reply may embed the structure inside conversational text.
	if m := threeRowsRegex.FindString(reply); m != "" {
		if g, ok := parseJSONCandidate(m); ok {
			return g, true
		}
	}
	return nil, false
}

func parseJSONCandidate(candidate string) (*schemas.ChallengeGrid, bool) {
	var value interface{}
	if err := json.UnmarshalFromString(candidate, &value); err != nil {
		return nil, false
	}

	switch v := value.(type) {
	case []interface{}:
		return gridFromAny(v)
	case map[string]interface{}:
		for _, field := range conventionalGridFields {
			if rows, ok := v[field].([]interface{}); ok {
				if g, ok := gridFromAny(rows); ok {
					return g, true
				}
			}
		}
		// Fall back to the first array-valued field of length 3.
		for _, fv := range v {
			if rows, ok := fv.([]interface{}); ok && len(rows) == schemas.GridSize {
				if g, ok := gridFromAny(rows); ok {
					return g, true
				}
			}
		}
	}
	return nil, false
}

// gridFromAny coerces a decoded JSON array into a validated grid.
func gridFromAny(rows []interface{}) (*schemas.ChallengeGrid, bool) {
	if len(rows) != schemas.GridSize {
		return nil, false
	}
	out := make([][]int, 0, schemas.GridSize)
	for _, r := range rows {
		cells, ok := r.([]interface{})
		if !ok || len(cells) != schemas.GridSize {
			return nil, false
		}
		row := make([]int, 0, schemas.GridSize)
		for _, c := range cells {
			n, ok := coerceCell(c)
			if !ok {
				return nil, false
			}
			row = append(row, n)
		}
		out = append(out, row)
	}
	return schemas.GridFromRows(out)
}

func coerceCell(v interface{}) (int, bool) {
	switch c := v.(type) {
	case float64:
		return int(c), true
	case bool:
		if c {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(c))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
