// internal/room/room.go
package room

import (
	"sync"
	"time"

	"github.com/jason-s-yu/columns/internal/game"
	"github.com/jason-s-yu/columns/internal/protocol"
)

// MaxPlayers is the capacity of every room.
const MaxPlayers = 2

// Status is the lifecycle state of a room.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusPlaying   Status = "playing"
	StatusFinished  Status = "finished"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusAbandoned
}

// Player is one occupied slot of a room.
type Player struct {
	ConnID   string
	PlayerID string
	Name     string
	Position int
	Ready    bool
	Score    int
}

// GameResult is produced when a room ends its match.
type GameResult struct {
	RoomID       int64
	WinnerConnID string
	Winner       string
	Duration     time.Duration
	FinalScores  []protocol.FinalScore
}

// Room is a two-seat match room. Membership and status are guarded by mu;
// the engine itself belongs to the room's Loop once the game has started.
type Room struct {
	ID        int64
	Name      string
	CreatedAt time.Time

	mu         sync.Mutex
	players    []*Player
	roster     []*Player // players seated when the game started, in join order
	status     Status
	startedAt  time.Time
	finishedAt time.Time
	engine     *game.ColumnsGame
	now        func() time.Time
}

// New creates an empty Waiting room.
func New(id int64, name string, now func() time.Time) *Room {
	if now == nil {
		now = time.Now
	}
	return &Room{
		ID:        id,
		Name:      name,
		CreatedAt: now(),
		status:    StatusWaiting,
		now:       now,
	}
}

// AddPlayer seats connID at the lowest free position. It never changes status.
func (r *Room) AddPlayer(connID, playerID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addPlayerUnsafe(connID, playerID, name)
}

func (r *Room) addPlayerUnsafe(connID, playerID, name string) error {
	if len(r.players) >= MaxPlayers {
		return ErrRoomFull
	}
	if r.indexOfUnsafe(connID) >= 0 {
		return ErrAlreadyInRoom
	}
	r.players = append(r.players, &Player{
		ConnID:   connID,
		PlayerID: playerID,
		Name:     name,
		Position: r.freePositionUnsafe(),
	})
	return nil
}

func (r *Room) freePositionUnsafe() int {
	taken := make(map[int]bool, len(r.players))
	for _, p := range r.players {
		taken[p.Position] = true
	}
	pos := 0
	for taken[pos] {
		pos++
	}
	return pos
}

func (r *Room) indexOfUnsafe(connID string) int {
	for i, p := range r.players {
		if p.ConnID == connID {
			return i
		}
	}
	return -1
}

// RemovePlayer drops connID and applies the resulting transition: an empty
// Waiting room is Abandoned, a Playing room left with fewer than two players
// is Finished. It returns whether the player was present and the new status.
func (r *Room) RemovePlayer(connID string) (bool, Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOfUnsafe(connID)
	if idx < 0 {
		return false, r.status
	}
	r.players = append(r.players[:idx], r.players[idx+1:]...)

	switch r.status {
	case StatusWaiting:
		if len(r.players) == 0 {
			r.status = StatusAbandoned
		}
	case StatusPlaying:
		if len(r.players) < MaxPlayers {
			r.finishUnsafe()
		}
	}
	return true, r.status
}

func (r *Room) finishUnsafe() {
	r.status = StatusFinished
	if r.finishedAt.IsZero() {
		r.finishedAt = r.now()
	}
	r.engine = nil
}

// HasPlayer reports whether connID holds a seat.
func (r *Room) HasPlayer(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOfUnsafe(connID) >= 0
}

// CanStart reports whether the room is Waiting with every seat taken.
func (r *Room) CanStart() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canStartUnsafe()
}

func (r *Room) canStartUnsafe() bool {
	return r.status == StatusWaiting && len(r.players) == MaxPlayers
}

// StartGame moves a full Waiting room to Playing and builds the engine with
// one session per seated player, in join order.
func (r *Room) StartGame() (*game.ColumnsGame, error) {
	return r.StartGameWith(game.NewColumnsGame())
}

// StartGameWith is StartGame with a caller-provided engine.
func (r *Room) StartGameWith(engine *game.ColumnsGame) (*game.ColumnsGame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.canStartUnsafe() {
		return nil, ErrCannotStart
	}

	r.roster = r.roster[:0]
	for _, p := range r.players {
		p.Ready = true
		p.Score = 0
		engine.InitializePlayer(p.ConnID, p.PlayerID, p.Name)
		r.roster = append(r.roster, p)
	}
	r.engine = engine
	r.status = StatusPlaying
	r.startedAt = r.now()
	return engine, nil
}

// currentEngine returns the running engine, nil unless Playing.
func (r *Room) currentEngine() *game.ColumnsGame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine
}

// SyncScores mirrors engine scores into the seats so summaries stay live.
func (r *Room) SyncScores(scores map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.roster {
		if s, ok := scores[p.ConnID]; ok {
			p.Score = s
		}
	}
}

// EndGame forces Finished and reports the match outcome. finishedAt keeps
// its first value when the room was already Finished by a departure.
func (r *Room) EndGame(winnerConnID string) GameResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.finishUnsafe()

	res := GameResult{
		RoomID:       r.ID,
		WinnerConnID: winnerConnID,
		FinalScores:  make([]protocol.FinalScore, 0, len(r.roster)),
	}
	if !r.startedAt.IsZero() {
		res.Duration = r.finishedAt.Sub(r.startedAt)
	}
	for _, p := range r.roster {
		if p.ConnID == winnerConnID {
			res.Winner = p.Name
		}
		res.FinalScores = append(res.FinalScores, protocol.FinalScore{Name: p.Name, Score: p.Score})
	}
	return res
}

// Status returns the current lifecycle state.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// FinishedAt returns when the room first became Finished.
func (r *Room) FinishedAt() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finishedAt, !r.finishedAt.IsZero()
}

// Players returns copies of the seated players in join order.
func (r *Room) Players() []Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Player, len(r.players))
	for i, p := range r.players {
		out[i] = *p
	}
	return out
}

// Summary projects the room to its public listing form.
func (r *Room) Summary() protocol.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaryUnsafe()
}

func (r *Room) summaryUnsafe() protocol.RoomSummary {
	players := make([]protocol.PlayerSummary, len(r.players))
	for i, p := range r.players {
		players[i] = protocol.PlayerSummary{
			Name:     p.Name,
			Position: p.Position,
			Ready:    p.Ready,
			Score:    p.Score,
		}
	}
	return protocol.RoomSummary{
		RoomID:      r.ID,
		RoomName:    r.Name,
		Players:     players,
		Status:      string(r.status),
		PlayerCount: len(r.players),
		MaxPlayers:  MaxPlayers,
		IsFull:      len(r.players) >= MaxPlayers,
	}
}

func (r *Room) availableUnsafe() bool {
	return r.status == StatusWaiting && len(r.players) < MaxPlayers
}
