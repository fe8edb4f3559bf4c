// internal/room/errors.go
package room

// ErrorCode is a structural failure of a room or registry operation. The
// code name is also the message sent to clients.
type ErrorCode string

const (
	ErrRoomNotFound   ErrorCode = "RoomNotFound"
	ErrRoomFull       ErrorCode = "RoomFull"
	ErrAlreadyInRoom  ErrorCode = "AlreadyInRoom"
	ErrRoomNotWaiting ErrorCode = "RoomNotWaiting"
	ErrNotInRoom      ErrorCode = "NotInRoom"
	ErrInvalidCommand ErrorCode = "InvalidCommand"
	ErrCannotStart    ErrorCode = "CannotStart"
)

func (e ErrorCode) Error() string { return string(e) }

// Result is the outcome of a registry operation.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Room is the room the operation acted on, when one was resolved.
	Room *Room `json:"-"`
	// Previous is the room a connection implicitly left on create or join.
	Previous *Room `json:"-"`
	// Code is the typed failure, nil on success.
	Code error `json:"-"`
}

func succeed(r *Room) Result {
	return Result{Success: true, Room: r}
}

func fail(err error) Result {
	return Result{Success: false, Error: err.Error(), Code: err}
}
