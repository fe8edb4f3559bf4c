// internal/game/sync_state.go
package game

// Node is one visible cell in client coordinates (row 0 = first visible row).
type Node struct {
	X    int       `json:"x"`
	Y    int       `json:"y"`
	Type JewelKind `json:"type"`
}

// PlayerState is the full snapshot of one player sent to every viewer.
type PlayerState struct {
	PlayerID     string `json:"playerId"`
	PlayerName   string `json:"playerName"`
	UpdatedNodes []Node `json:"updatedNodes"`
	Score        int    `json:"score"`
	Level        int    `json:"level"`
	IsAlive      bool   `json:"isAlive"`
	NextPiece    Piece  `json:"nextPiece"`
}

// PlayerState renders the snapshot for connID. Every visible board cell is
// listed, followed by the falling piece's visible cells when the player is alive.
func (g *ColumnsGame) PlayerState(connID string) (PlayerState, bool) {
	p, ok := g.byConn[connID]
	if !ok {
		return PlayerState{}, false
	}
	return p.snapshot(), true
}

func (p *PlayerSession) snapshot() PlayerState {
	nodes := make([]Node, 0, BoardWidth*VisibleHeight+PieceSize)
	for x := 0; x < BoardWidth; x++ {
		for y := HiddenRows; y < BoardHeight; y++ {
			nodes = append(nodes, Node{X: x, Y: y - HiddenRows, Type: p.Board.Get(x, y)})
		}
	}

	if p.Alive && p.CurrentPiece != nil {
		for i, kind := range p.CurrentPiece {
			y := p.PieceY + i
			if y < HiddenRows {
				continue
			}
			nodes = append(nodes, Node{X: p.PieceX, Y: y - HiddenRows, Type: kind})
		}
	}

	return PlayerState{
		PlayerID:     p.PlayerID,
		PlayerName:   p.Name,
		UpdatedNodes: nodes,
		Score:        p.Score,
		Level:        p.Level,
		IsAlive:      p.Alive,
		NextPiece:    p.NextPiece,
	}
}

// AllStates snapshots every player keyed by connection id.
func (g *ColumnsGame) AllStates() map[string]PlayerState {
	states := make(map[string]PlayerState, len(g.players))
	for _, p := range g.players {
		states[p.ConnID] = p.snapshot()
	}
	return states
}
