// internal/protocol/commands.go
package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DefaultPlayerName is used when a command omits playerName or sends a blank one.
const DefaultPlayerName = "Player"

// MaxNameLength bounds player and room names; longer names are truncated.
const MaxNameLength = 32

// RoomID accepts both a JSON number and a numeric string. Anything else
// decodes to 0, which no room ever uses.
type RoomID int64

func (id *RoomID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		*id = 0
		return nil
	}
	*id = RoomID(n)
	return nil
}

// CreateRoomData is the payload of createRoom.
type CreateRoomData struct {
	PlayerName string `json:"playerName"`
	RoomName   string `json:"roomName"`
}

// JoinRoomData is the payload of joinRoom.
type JoinRoomData struct {
	RoomID     RoomID `json:"roomId"`
	PlayerName string `json:"playerName"`
}

// SpectateRoomData is the payload of spectateRoom.
type SpectateRoomData struct {
	RoomID RoomID `json:"roomId"`
}

// RequestRoomsListData is the payload of requestRoomsList.
type RequestRoomsListData struct {
	OnlyAvailable bool `json:"onlyAvailable"`
}

// decodeLenient fills v from data, leaving fields at their zero value when
// data is absent or malformed.
func decodeLenient(data json.RawMessage, v interface{}) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}

func cleanName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	if r := []rune(name); len(r) > MaxNameLength {
		name = string(r[:MaxNameLength])
	}
	return name
}

// DecodeCreateRoom reads createRoom data. A missing player name becomes
// "Player" and a missing room name becomes "<player>'s room".
func DecodeCreateRoom(m Message) CreateRoomData {
	var d CreateRoomData
	decodeLenient(m.Data, &d)
	d.PlayerName = cleanName(d.PlayerName, DefaultPlayerName)
	d.RoomName = cleanName(d.RoomName, d.PlayerName+"'s room")
	return d
}

// DecodeJoinRoom reads joinRoom data.
func DecodeJoinRoom(m Message) JoinRoomData {
	var d JoinRoomData
	decodeLenient(m.Data, &d)
	d.PlayerName = cleanName(d.PlayerName, DefaultPlayerName)
	return d
}

// DecodeSpectateRoom reads spectateRoom data.
func DecodeSpectateRoom(m Message) SpectateRoomData {
	var d SpectateRoomData
	decodeLenient(m.Data, &d)
	return d
}

// DecodeRequestRoomsList reads requestRoomsList data.
func DecodeRequestRoomsList(m Message) RequestRoomsListData {
	var d RequestRoomsListData
	decodeLenient(m.Data, &d)
	return d
}
