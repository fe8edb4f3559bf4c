// internal/game/piece.go
package game

import "math/rand"

// PieceSize is the number of stacked jewels in every falling piece.
const PieceSize = 3

// Piece is a vertical column of three jewels, index 0 on top.
type Piece [PieceSize]JewelKind

// Rotate cycles the colors down by one: the bottom jewel moves to the top.
// The piece keeps occupying the same three cells.
func (p Piece) Rotate() Piece {
	return Piece{p[2], p[0], p[1]}
}

// randomPiece draws three independent colors.
func randomPiece(r *rand.Rand) Piece {
	var p Piece
	for i := range p {
		p[i] = JewelColors[r.Intn(len(JewelColors))]
	}
	return p
}
