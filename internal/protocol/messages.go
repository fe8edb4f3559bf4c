// internal/protocol/messages.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound command types.
const (
	TypeCreateRoom       = "createRoom"
	TypeJoinRoom         = "joinRoom"
	TypeSpectateRoom     = "spectateRoom"
	TypeLeaveRoom        = "leaveRoom"
	TypeMoveLeft         = "moveLeft"
	TypeMoveRight        = "moveRight"
	TypeMoveDown         = "moveDown"
	TypeRotatePiece      = "rotatePiece"
	TypeDrop             = "drop"
	TypeRequestRoomsList = "requestRoomsList"
	TypePing             = "ping"
)

// Outbound event types.
const (
	TypeRoomsList       = "roomsList"
	TypeRoomCreated     = "roomCreated"
	TypeRoomJoined      = "roomJoined"
	TypePlayerJoined    = "playerJoined"
	TypePlayerLeft      = "playerLeft"
	TypeLeftRoom        = "leftRoom"
	TypeSpectatorJoined = "spectatorJoined"
	TypeGameSetup       = "gameSetup"
	TypeGameStart       = "gameStart"
	TypeGameUpdate      = "gameUpdate"
	TypeGameOver        = "gameOver"
	TypeError           = "error"
	TypeWelcome         = "welcome"
	TypePong            = "pong"
)

// Message is the inbound wire envelope. Data stays raw until the handler
// for Type decodes it.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Envelope is the outbound wire envelope.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// NewEnvelope tags data with an event type.
func NewEnvelope(eventType string, data interface{}) Envelope {
	return Envelope{Type: eventType, Data: data}
}

// ErrorEnvelope builds an error{message} event.
func ErrorEnvelope(msg string) Envelope {
	return NewEnvelope(TypeError, ErrorData{Message: msg})
}

// Parse decodes a raw frame into a Message. A frame without a type is rejected.
func Parse(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("invalid message: %w", err)
	}
	if m.Type == "" {
		return Message{}, fmt.Errorf("invalid message: missing type")
	}
	return m, nil
}

// IsMove reports whether t is one of the piece commands routed to a room loop.
func IsMove(t string) bool {
	switch t {
	case TypeMoveLeft, TypeMoveRight, TypeMoveDown, TypeRotatePiece, TypeDrop:
		return true
	}
	return false
}
