// internal/protocol/events.go
package protocol

import "github.com/jason-s-yu/columns/internal/game"

// PlayerSummary is the public view of one room slot.
type PlayerSummary struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
	Ready    bool   `json:"ready"`
	Score    int    `json:"score"`
}

// RoomSummary is the public view of a room used by listings and room events.
type RoomSummary struct {
	RoomID      int64           `json:"roomId"`
	RoomName    string          `json:"roomName"`
	Players     []PlayerSummary `json:"players"`
	Status      string          `json:"status"`
	PlayerCount int             `json:"playerCount"`
	MaxPlayers  int             `json:"maxPlayers"`
	IsFull      bool            `json:"isFull"`
}

// RoomAck answers createRoom and joinRoom.
type RoomAck struct {
	Success bool        `json:"success"`
	RoomID  int64       `json:"roomId"`
	Room    RoomSummary `json:"room"`
}

type PlayerJoinedData struct {
	PlayerName string      `json:"playerName"`
	Room       RoomSummary `json:"room"`
}

type PlayerLeftData struct {
	Room RoomSummary `json:"room"`
}

type LeftRoomData struct {
	Success bool `json:"success"`
}

type SpectatorJoinedData struct {
	Success bool  `json:"success"`
	RoomID  int64 `json:"roomId"`
}

// GridSetup tells a client how to allocate one player's board.
type GridSetup struct {
	PlayerID   string `json:"playerId"`
	Position   int    `json:"position"`
	PlayerName string `json:"playerName"`
	ConnID     string `json:"connId"`
	SizeX      int    `json:"sizeX"`
	SizeY      int    `json:"sizeY"`
}

type GameSetupData struct {
	RoomID  int64       `json:"roomId"`
	Players []GridSetup `json:"players"`
}

// GameUpdateData maps connection id to that player's full snapshot.
type GameUpdateData map[string]game.PlayerState

type GameStartData struct {
	Room      RoomSummary    `json:"room"`
	GameState GameUpdateData `json:"gameState"`
}

type FinalScore struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type GameOverData struct {
	Winner      string       `json:"winner"`
	FinalScores []FinalScore `json:"finalScores"`
}

type ErrorData struct {
	Message string `json:"message"`
}

type WelcomeData struct {
	ConnID   string `json:"connId"`
	PlayerID string `json:"playerId"`
}

// NewGridSetup builds the setup hint for a visible board.
func NewGridSetup(playerID string, position int, name, connID string) GridSetup {
	return GridSetup{
		PlayerID:   playerID,
		Position:   position,
		PlayerName: name,
		ConnID:     connID,
		SizeX:      game.BoardWidth,
		SizeY:      game.VisibleHeight,
	}
}
