// internal/game/game_test.go
package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestGame builds a deterministic game with the given connections joined in order.
func setupTestGame(t *testing.T, conns ...string) *ColumnsGame {
	t.Helper()
	g := NewColumnsGameWithRand(rand.New(rand.NewSource(42)))
	for _, c := range conns {
		p := g.InitializePlayer(c, "pid-"+c, "name-"+c)
		require.True(t, p.Alive, "fresh player should be alive")
		require.NotNil(t, p.CurrentPiece, "fresh player should have a falling piece")
	}
	return g
}

// fillerKind paints a cell from five colors (never Green) so that no run of three appears.
func fillerKind(x, y int) JewelKind {
	palette := [...]JewelKind{Red, Blue, Yellow, Purple, Orange}
	return palette[(x+2*y)%len(palette)]
}

func TestInitializePlayerSpawnsAtCenter(t *testing.T) {
	g := setupTestGame(t, "a")
	p, ok := g.Player("a")
	require.True(t, ok)

	assert.Equal(t, SpawnColumn, p.PieceX)
	assert.Equal(t, 0, p.PieceY)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 0, p.Score)
	for _, k := range p.NextPiece {
		assert.NotEqual(t, None, k, "next piece must be fully colored")
	}
}

func TestMoveLeftRightBounds(t *testing.T) {
	g := setupTestGame(t, "a")
	p, _ := g.Player("a")

	for i := 0; i < SpawnColumn; i++ {
		require.True(t, g.MoveLeft("a"))
	}
	assert.Equal(t, 0, p.PieceX)
	assert.False(t, g.MoveLeft("a"), "cannot leave the grid on the left")

	for i := 0; i < BoardWidth-1; i++ {
		require.True(t, g.MoveRight("a"))
	}
	assert.Equal(t, BoardWidth-1, p.PieceX)
	assert.False(t, g.MoveRight("a"), "cannot leave the grid on the right")
}

func TestMoveBlockedByOccupiedColumn(t *testing.T) {
	g := setupTestGame(t, "a")
	p, _ := g.Player("a")
	p.Board.Set(SpawnColumn-1, 1, Red)

	assert.False(t, g.MoveLeft("a"))
	assert.Equal(t, SpawnColumn, p.PieceX)
}

func TestRotateCyclesColors(t *testing.T) {
	g := setupTestGame(t, "a")
	p, _ := g.Player("a")
	p.CurrentPiece = &Piece{Red, Green, Blue}

	require.True(t, g.RotatePiece("a"))
	assert.Equal(t, Piece{Blue, Red, Green}, *p.CurrentPiece)

	require.True(t, g.RotatePiece("a"))
	require.True(t, g.RotatePiece("a"))
	assert.Equal(t, Piece{Red, Green, Blue}, *p.CurrentPiece, "three rotations restore the piece")
}

func TestMoveDownLocksAtBottom(t *testing.T) {
	g := setupTestGame(t, "a")
	p, _ := g.Player("a")
	p.CurrentPiece = &Piece{Red, Green, Blue}
	p.NextPiece = Piece{Yellow, Purple, Orange}

	moves := 0
	for g.MoveDown("a") {
		moves++
	}
	assert.Equal(t, BoardHeight-PieceSize, moves)

	assert.Equal(t, Red, p.Board.Get(SpawnColumn, BoardHeight-3))
	assert.Equal(t, Green, p.Board.Get(SpawnColumn, BoardHeight-2))
	assert.Equal(t, Blue, p.Board.Get(SpawnColumn, BoardHeight-1))

	require.NotNil(t, p.CurrentPiece, "next piece should have spawned")
	assert.Equal(t, Piece{Yellow, Purple, Orange}, *p.CurrentPiece)
	assert.Equal(t, 0, p.PieceY)
}

func TestDropAlwaysLocks(t *testing.T) {
	g := setupTestGame(t, "a")
	p, _ := g.Player("a")
	p.CurrentPiece = &Piece{Red, Green, Blue}

	require.True(t, g.Drop("a"))
	assert.Equal(t, Blue, p.Board.Get(SpawnColumn, BoardHeight-1))
	assert.Equal(t, 0, p.PieceY, "a fresh piece spawns after the drop")
}

// A vertical run of three is a match.
func TestLockVerticalTripleClears(t *testing.T) {
	g := setupTestGame(t, "a")
	p, _ := g.Player("a")
	p.CurrentPiece = &Piece{Red, Red, Red}
	p.PieceX, p.PieceY = 0, 0

	g.lockPiece(p)

	for y := 0; y < BoardHeight; y++ {
		assert.Equal(t, None, p.Board.Get(0, y), "row %d should be empty", y)
	}
	assert.Equal(t, 3*PointsPerJewel*p.Level, p.Score)
}

// A pre-existing horizontal run is cleared on the next lock and
// the cells above it fall by one row.
func TestLockClearsExistingRunAndAppliesGravity(t *testing.T) {
	g := setupTestGame(t, "a")
	p, _ := g.Player("a")

	for x := 1; x <= 3; x++ {
		for y := 6; y < BoardHeight; y++ {
			p.Board.Set(x, y, fillerKind(x, y))
		}
		p.Board.Set(x, 5, Green)
	}
	p.Board.Set(1, 4, Red)
	require.Len(t, p.Board.FindMatches(), 3)

	p.CurrentPiece = &Piece{Red, Blue, Yellow}
	p.PieceX, p.PieceY = 5, 0
	for g.moveDown(p) {
	}

	assert.Equal(t, 3*PointsPerJewel, p.Score)
	assert.Equal(t, Red, p.Board.Get(1, 5), "cell above the run falls one row")
	assert.Equal(t, None, p.Board.Get(1, 4))
	assert.Equal(t, None, p.Board.Get(2, 5))
	assert.Equal(t, None, p.Board.Get(3, 5))
	for x := 1; x <= 3; x++ {
		for y := 6; y < BoardHeight; y++ {
			assert.Equal(t, fillerKind(x, y), p.Board.Get(x, y), "cell (%d,%d) must stay put", x, y)
		}
	}
}

func TestSpawnCollisionKillsPlayer(t *testing.T) {
	g := setupTestGame(t, "a")
	p, _ := g.Player("a")
	for y := 1; y < BoardHeight; y++ {
		p.Board.Set(SpawnColumn, y, fillerKind(0, y))
	}
	p.CurrentPiece = &Piece{Red, Green, Blue}
	p.PieceY = -2

	g.lockPiece(p)

	assert.False(t, p.Alive)
	assert.Nil(t, p.CurrentPiece)
	assert.False(t, g.MoveLeft("a"), "dead players cannot move")
	assert.False(t, g.AnyAlive())
}

func TestTickMovesOnlyLivingPlayers(t *testing.T) {
	g := setupTestGame(t, "a", "b")
	a, _ := g.Player("a")
	b, _ := g.Player("b")
	g.Deactivate("b")

	require.True(t, g.Tick())
	assert.Equal(t, 1, a.PieceY)
	assert.Equal(t, 0, b.PieceY)
	assert.False(t, b.Alive)
}

func fillColumnForDeath(p *PlayerSession) {
	for y := PieceSize; y < BoardHeight; y++ {
		p.Board.Set(SpawnColumn, y, fillerKind(1, y))
	}
}

// Both players die on the same tick, the earliest joiner wins.
func TestSimultaneousDeathWinnerIsFirstJoined(t *testing.T) {
	g := setupTestGame(t, "a", "b")
	a, _ := g.Player("a")
	b, _ := g.Player("b")

	for _, p := range []*PlayerSession{a, b} {
		fillColumnForDeath(p)
		p.CurrentPiece = &Piece{Red, Green, Blue}
		p.NextPiece = Piece{Red, Green, Blue}
		p.Score = 500
	}
	b.Score = 900

	assert.False(t, g.Tick(), "nobody survives the tick")
	assert.False(t, a.Alive)
	assert.False(t, b.Alive)

	winner := g.Winner()
	require.NotNil(t, winner)
	assert.Equal(t, "a", winner.ConnID)
	assert.Equal(t, map[string]int{"a": 500, "b": 900}, g.Scores())
}

func TestWinnerIsLastToDie(t *testing.T) {
	g := setupTestGame(t, "a", "b")
	g.Deactivate("a")
	require.True(t, g.Tick())
	g.Deactivate("b")

	winner := g.Winner()
	require.NotNil(t, winner)
	assert.Equal(t, "b", winner.ConnID)
}

func TestPlayerStateHidesSpawnRow(t *testing.T) {
	g := setupTestGame(t, "a")
	p, _ := g.Player("a")
	p.CurrentPiece = &Piece{Red, Green, Blue}
	p.Board.Set(0, 0, Orange) // hidden row, never shown
	p.Board.Set(0, BoardHeight-1, Purple)

	st, ok := g.PlayerState("a")
	require.True(t, ok)

	assert.Equal(t, "pid-a", st.PlayerID)
	assert.Equal(t, "name-a", st.PlayerName)
	assert.True(t, st.IsAlive)
	assert.Equal(t, p.NextPiece, st.NextPiece)

	// board cells plus the two piece cells already below the hidden row
	require.Len(t, st.UpdatedNodes, BoardWidth*VisibleHeight+2)
	assert.Contains(t, st.UpdatedNodes, Node{X: 0, Y: VisibleHeight - 1, Type: Purple})
	for _, n := range st.UpdatedNodes {
		assert.GreaterOrEqual(t, n.Y, 0)
		assert.Less(t, n.Y, VisibleHeight)
		assert.NotEqual(t, Orange, n.Type, "hidden row must not leak")
	}
	tail := st.UpdatedNodes[len(st.UpdatedNodes)-2:]
	assert.Equal(t, Node{X: SpawnColumn, Y: 0, Type: Green}, tail[0])
	assert.Equal(t, Node{X: SpawnColumn, Y: 1, Type: Blue}, tail[1])

	_, ok = g.PlayerState("missing")
	assert.False(t, ok)
}

func TestAllStatesKeyedByConnection(t *testing.T) {
	g := setupTestGame(t, "a", "b")
	states := g.AllStates()
	require.Len(t, states, 2)
	assert.Equal(t, "pid-a", states["a"].PlayerID)
	assert.Equal(t, "pid-b", states["b"].PlayerID)
}

func TestCommandsOnUnknownPlayerAreNoops(t *testing.T) {
	g := setupTestGame(t, "a")
	assert.False(t, g.MoveLeft("ghost"))
	assert.False(t, g.MoveRight("ghost"))
	assert.False(t, g.MoveDown("ghost"))
	assert.False(t, g.RotatePiece("ghost"))
	assert.False(t, g.Drop("ghost"))
}
