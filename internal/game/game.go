// internal/game/game.go
package game

import (
	"math/rand"
	"time"
)

// PointsPerJewel is multiplied by the cleared cell count and the player's level.
const PointsPerJewel = 100

// PlayerSession is one participant's simulation state inside a ColumnsGame.
type PlayerSession struct {
	ConnID   string
	PlayerID string
	Name     string

	Board        *Board
	CurrentPiece *Piece
	NextPiece    Piece
	PieceX       int
	PieceY       int

	Score int
	Level int
	Alive bool

	// diedAt is the game step on which the session stopped being alive.
	diedAt int
}

// ColumnsGame holds the boards of every participant of one room. It is not
// safe for concurrent use: the room loop that owns it is its single writer.
type ColumnsGame struct {
	players []*PlayerSession
	byConn  map[string]*PlayerSession
	rng     *rand.Rand

	// step counts ticks and commands, used to order deaths.
	step int
}

// NewColumnsGame builds an empty game with a time-seeded piece generator.
func NewColumnsGame() *ColumnsGame {
	return NewColumnsGameWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewColumnsGameWithRand builds an empty game drawing pieces from r.
func NewColumnsGameWithRand(r *rand.Rand) *ColumnsGame {
	return &ColumnsGame{
		byConn: make(map[string]*PlayerSession),
		rng:    r,
	}
}

// InitializePlayer allocates a session with an empty board and spawns its
// first piece. Re-initializing a known connection is a no-op.
func (g *ColumnsGame) InitializePlayer(connID, playerID, name string) *PlayerSession {
	if p, ok := g.byConn[connID]; ok {
		return p
	}
	p := &PlayerSession{
		ConnID:    connID,
		PlayerID:  playerID,
		Name:      name,
		Board:     NewBoard(),
		NextPiece: randomPiece(g.rng),
		Level:     1,
		Alive:     true,
	}
	g.players = append(g.players, p)
	g.byConn[connID] = p
	g.spawn(p)
	return p
}

// Players returns the sessions in join order.
func (g *ColumnsGame) Players() []*PlayerSession {
	out := make([]*PlayerSession, len(g.players))
	copy(out, g.players)
	return out
}

// Player returns the session bound to connID.
func (g *ColumnsGame) Player(connID string) (*PlayerSession, bool) {
	p, ok := g.byConn[connID]
	return p, ok
}

// active returns the session for connID only if it can still be moved.
func (g *ColumnsGame) active(connID string) *PlayerSession {
	p, ok := g.byConn[connID]
	if !ok || !p.Alive || p.CurrentPiece == nil {
		return nil
	}
	return p
}

// spawn promotes the next piece and places it at the top of the hidden row.
// A collision at the spawn point kills the player.
func (g *ColumnsGame) spawn(p *PlayerSession) bool {
	current := p.NextPiece
	p.CurrentPiece = &current
	p.NextPiece = randomPiece(g.rng)
	p.PieceX = SpawnColumn
	p.PieceY = 0

	if !p.Board.CanPlace(current, p.PieceX, p.PieceY) {
		g.kill(p)
		return false
	}
	return true
}

func (g *ColumnsGame) kill(p *PlayerSession) {
	if !p.Alive {
		return
	}
	p.Alive = false
	p.CurrentPiece = nil
	p.diedAt = g.step
}

func (g *ColumnsGame) shift(connID string, dx int) bool {
	g.step++
	p := g.active(connID)
	if p == nil {
		return false
	}
	if !p.Board.CanPlace(*p.CurrentPiece, p.PieceX+dx, p.PieceY) {
		return false
	}
	p.PieceX += dx
	return true
}

// MoveLeft shifts the falling piece one column left if it fits.
func (g *ColumnsGame) MoveLeft(connID string) bool {
	return g.shift(connID, -1)
}

// MoveRight shifts the falling piece one column right if it fits.
func (g *ColumnsGame) MoveRight(connID string) bool {
	return g.shift(connID, 1)
}

// MoveDown lowers the piece one row, locking it when it cannot descend.
// It returns true only when the piece actually moved.
func (g *ColumnsGame) MoveDown(connID string) bool {
	g.step++
	p := g.active(connID)
	if p == nil {
		return false
	}
	return g.moveDown(p)
}

func (g *ColumnsGame) moveDown(p *PlayerSession) bool {
	if p.Board.CanPlace(*p.CurrentPiece, p.PieceX, p.PieceY+1) {
		p.PieceY++
		return true
	}
	g.lockPiece(p)
	return false
}

// RotatePiece cycles the colors of the falling piece.
func (g *ColumnsGame) RotatePiece(connID string) bool {
	g.step++
	p := g.active(connID)
	if p == nil {
		return false
	}
	rotated := p.CurrentPiece.Rotate()
	p.CurrentPiece = &rotated
	return true
}

// Drop lowers the piece as far as it goes and locks it.
func (g *ColumnsGame) Drop(connID string) bool {
	g.step++
	p := g.active(connID)
	if p == nil {
		return false
	}
	for g.moveDown(p) {
	}
	return true
}

// lockPiece writes the piece into the board, resolves matches, applies
// gravity and spawns the next piece. Cells still above the grid are dropped.
func (g *ColumnsGame) lockPiece(p *PlayerSession) {
	for i, kind := range p.CurrentPiece {
		p.Board.Set(p.PieceX, p.PieceY+i, kind)
	}
	p.CurrentPiece = nil

	if cleared := p.Board.ClearMatches(); cleared > 0 {
		p.Score += cleared * PointsPerJewel * p.Level
	}
	p.Board.ApplyGravity()

	g.spawn(p)
}

// Tick advances every living player's piece by one row. It returns whether
// at least one player is still alive afterwards.
func (g *ColumnsGame) Tick() bool {
	g.step++
	for _, p := range g.players {
		if p.Alive && p.CurrentPiece != nil {
			g.moveDown(p)
		}
	}
	return g.AnyAlive()
}

// AnyAlive reports whether some player can still move.
func (g *ColumnsGame) AnyAlive() bool {
	for _, p := range g.players {
		if p.Alive {
			return true
		}
	}
	return false
}

// Deactivate freezes a departing player's session: it stops falling and
// its board is kept as-is.
func (g *ColumnsGame) Deactivate(connID string) {
	g.step++
	if p, ok := g.byConn[connID]; ok {
		g.kill(p)
	}
}

// Winner picks the last player standing. While someone is alive the first
// living player in join order wins; once everybody is dead it is the player
// who died last, ties going to the earliest joiner.
func (g *ColumnsGame) Winner() *PlayerSession {
	var winner *PlayerSession
	for _, p := range g.players {
		if p.Alive {
			return p
		}
		if winner == nil || p.diedAt > winner.diedAt {
			winner = p
		}
	}
	return winner
}

// Scores maps each connection to its current score.
func (g *ColumnsGame) Scores() map[string]int {
	scores := make(map[string]int, len(g.players))
	for _, p := range g.players {
		scores[p.ConnID] = p.Score
	}
	return scores
}
