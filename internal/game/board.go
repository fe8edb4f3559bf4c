// internal/game/board.go
package game

import "sort"

// Board dimensions. Row 0 is a hidden spawn buffer that clients never see,
// so a client renders VisibleHeight rows starting at engine row HiddenRows.
const (
	BoardWidth    = 6
	BoardHeight   = 13
	HiddenRows    = 1
	VisibleHeight = BoardHeight - HiddenRows

	// SpawnColumn is the horizontal center a fresh piece starts in.
	SpawnColumn = 2
)

// JewelKind is the content of a single board cell.
type JewelKind uint8

const (
	None JewelKind = iota
	Red
	Green
	Blue
	Yellow
	Purple
	Orange
)

// JewelColors lists the six playable kinds in draw order.
var JewelColors = [...]JewelKind{Red, Green, Blue, Yellow, Purple, Orange}

// Valid reports whether k is None or one of the six colors.
func (k JewelKind) Valid() bool {
	return k <= Orange
}

func (k JewelKind) String() string {
	switch k {
	case None:
		return "none"
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Yellow:
		return "yellow"
	case Purple:
		return "purple"
	case Orange:
		return "orange"
	default:
		return "invalid"
	}
}

// Coord addresses a single cell in engine coordinates (row 0 = hidden row).
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Board is one player's grid, indexed [column][row] with row 0 at the top.
type Board struct {
	cells [BoardWidth][BoardHeight]JewelKind
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{}
}

func inBounds(x, y int) bool {
	return x >= 0 && x < BoardWidth && y >= 0 && y < BoardHeight
}

// Get returns the kind at (x, y). Reads outside the grid return None, which
// is what lets a piece sit partially in the rows above the board.
func (b *Board) Get(x, y int) JewelKind {
	if !inBounds(x, y) {
		return None
	}
	return b.cells[x][y]
}

// Set writes kind at (x, y). Writes outside the grid and invalid kinds are ignored.
func (b *Board) Set(x, y int, kind JewelKind) {
	if !inBounds(x, y) || !kind.Valid() {
		return
	}
	b.cells[x][y] = kind
}

// CanPlace reports whether piece p fits with its top cell at column x, row y.
// Cells above the grid (row < 0) never collide.
func (b *Board) CanPlace(p Piece, x, y int) bool {
	if x < 0 || x >= BoardWidth {
		return false
	}
	for i := range p {
		row := y + i
		if row >= BoardHeight {
			return false
		}
		if row >= 0 && b.cells[x][row] != None {
			return false
		}
	}
	return true
}

// matchDirections are the four run directions scanned from every cell:
// right, down, down-right and down-left.
var matchDirections = [...]Coord{{1, 0}, {0, 1}, {1, 1}, {-1, 1}}

// FindMatches returns every cell that belongs to at least one run of three
// identical jewels. Longer runs decompose into overlapping windows of three,
// so they are returned whole. The board is not modified.
func (b *Board) FindMatches() []Coord {
	seen := make(map[Coord]struct{})
	for x := 0; x < BoardWidth; x++ {
		for y := 0; y < BoardHeight; y++ {
			kind := b.cells[x][y]
			if kind == None {
				continue
			}
			for _, d := range matchDirections {
				x2, y2 := x+2*d.X, y+2*d.Y
				if !inBounds(x2, y2) {
					continue
				}
				if b.cells[x+d.X][y+d.Y] != kind || b.cells[x2][y2] != kind {
					continue
				}
				seen[Coord{x, y}] = struct{}{}
				seen[Coord{x + d.X, y + d.Y}] = struct{}{}
				seen[Coord{x2, y2}] = struct{}{}
			}
		}
	}

	matches := make([]Coord, 0, len(seen))
	for c := range seen {
		matches = append(matches, c)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].X != matches[j].X {
			return matches[i].X < matches[j].X
		}
		return matches[i].Y < matches[j].Y
	})
	return matches
}

// Clear empties the given cells.
func (b *Board) Clear(cells []Coord) {
	for _, c := range cells {
		b.Set(c.X, c.Y, None)
	}
}

// ClearMatches detects and removes all runs in one pass and returns how many
// cells were cleared.
func (b *Board) ClearMatches() int {
	matches := b.FindMatches()
	b.Clear(matches)
	return len(matches)
}

// ApplyGravity compacts every column downward, keeping the top-to-bottom
// order of the remaining jewels.
func (b *Board) ApplyGravity() {
	for x := 0; x < BoardWidth; x++ {
		write := BoardHeight - 1
		for y := BoardHeight - 1; y >= 0; y-- {
			if b.cells[x][y] == None {
				continue
			}
			if y != write {
				b.cells[x][write] = b.cells[x][y]
				b.cells[x][y] = None
			}
			write--
		}
	}
}
