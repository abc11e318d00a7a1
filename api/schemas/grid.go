// api/schemas/grid.go
package schemas

// GridSize is the fixed edge length of the verification puzzle grid.
const GridSize = 3

// ChallengeGrid is the normalized solution to an image-selection challenge.
// Exactly the cells holding 1 are interpreted as "contains the target";
// everything else must be 0.
type ChallengeGrid [GridSize][GridSize]int

// GridCell addresses one cell of the challenge grid in row-major order.
type GridCell struct {
	Row int
	Col int
}

// Marked returns the coordinates of every selected cell in row-major order.
// Click ordering downstream depends on this ordering being stable.
func (g ChallengeGrid) Marked() []GridCell {
	var cells []GridCell
	for r := 0; r < GridSize; r++ {
		for c := 0; c < GridSize; c++ {
			if g[r][c] != 0 {
				cells = append(cells, GridCell{Row: r, Col: c})
			}
		}
	}
	return cells
}

// Empty reports whether no cell is marked. An empty grid is treated as a
// solver failure by callers, never submitted.
func (g ChallengeGrid) Empty() bool {
	return len(g.Marked()) == 0
}

// GridFromRows validates a freshly parsed matrix and normalizes it into a
// ChallengeGrid. Any shape other than exactly 3x3 is rejected; cell values
// are clamped to {0,1} (any non-zero counts as marked).
func GridFromRows(rows [][]int) (*ChallengeGrid, bool) {
	if len(rows) != GridSize {
		return nil, false
	}
	var g ChallengeGrid
	for r, row := range rows {
		if len(row) != GridSize {
			return nil, false
		}
		for c, v := range row {
			if v != 0 {
				g[r][c] = 1
			}
		}
	}
	return &g, true
}
