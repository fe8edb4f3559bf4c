// internal/room/registry.go
package room

import (
	"sort"
	"sync"
	"time"

	"github.com/jason-s-yu/columns/internal/protocol"
	"github.com/sirupsen/logrus"
)

// DefaultRetention is how long a Finished room stays listed.
const DefaultRetention = 5 * time.Minute

// Registry owns every room and the connection -> room routing table.
// Lock order is registry before room.
type Registry struct {
	mu     sync.Mutex
	rooms  map[int64]*Room
	byConn map[string]int64
	nextID int64

	retention time.Duration
	now       func() time.Time
	logger    *logrus.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithRetention overrides how long Finished rooms are kept.
func WithRetention(d time.Duration) Option {
	return func(reg *Registry) {
		if d > 0 {
			reg.retention = d
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(reg *Registry) {
		if now != nil {
			reg.now = now
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *logrus.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	reg := &Registry{
		rooms:     make(map[int64]*Room),
		byConn:    make(map[string]int64),
		retention: DefaultRetention,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// CreateRoom opens a Waiting room seating connID first. A connection that
// already sits in another room leaves it first, reported in Result.Previous.
func (reg *Registry) CreateRoom(connID, playerID, playerName, roomName string) Result {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	prev := reg.leaveUnsafe(connID)

	reg.nextID++
	r := New(reg.nextID, roomName, reg.now)
	if err := r.AddPlayer(connID, playerID, playerName); err != nil {
		// unreachable for a fresh room
		return fail(err)
	}
	reg.rooms[r.ID] = r
	reg.byConn[connID] = r.ID

	reg.logger.WithFields(logrus.Fields{
		"room_id": r.ID,
		"conn_id": connID,
	}).Infof("room %q created", roomName)

	res := succeed(r)
	res.Previous = prev
	return res
}

// JoinRoom seats connID in roomID. Failures leave every mapping untouched,
// including the connection's current room.
func (reg *Registry) JoinRoom(roomID int64, connID, playerID, playerName string) Result {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[roomID]
	if !ok {
		return fail(ErrRoomNotFound)
	}

	r.mu.Lock()
	var err error
	switch {
	case r.status != StatusWaiting:
		err = ErrRoomNotWaiting
	case len(r.players) >= MaxPlayers:
		err = ErrRoomFull
	case r.indexOfUnsafe(connID) >= 0:
		err = ErrAlreadyInRoom
	}
	r.mu.Unlock()
	if err != nil {
		res := fail(err)
		res.Room = r
		return res
	}

	prev := reg.leaveUnsafe(connID)

	if err := r.AddPlayer(connID, playerID, playerName); err != nil {
		res := fail(err)
		res.Room = r
		res.Previous = prev
		return res
	}
	reg.byConn[connID] = roomID

	reg.logger.WithFields(logrus.Fields{
		"room_id": roomID,
		"conn_id": connID,
	}).Infof("%s joined room", playerName)

	res := succeed(r)
	res.Previous = prev
	return res
}

// LeaveRoom removes connID from its room. The mapping is always dropped and
// an Abandoned room is deleted.
func (reg *Registry) LeaveRoom(connID string) Result {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.byConn[connID]; !ok {
		return fail(ErrNotInRoom)
	}
	return succeed(reg.leaveUnsafe(connID))
}

// leaveUnsafe detaches connID from its current room, if any, and returns it.
func (reg *Registry) leaveUnsafe(connID string) *Room {
	roomID, ok := reg.byConn[connID]
	if !ok {
		return nil
	}
	delete(reg.byConn, connID)

	r, ok := reg.rooms[roomID]
	if !ok {
		return nil
	}
	_, status := r.RemovePlayer(connID)
	if status == StatusAbandoned {
		delete(reg.rooms, roomID)
		reg.logger.WithField("room_id", roomID).Info("room abandoned and removed")
	}
	reg.logger.WithFields(logrus.Fields{
		"room_id": roomID,
		"conn_id": connID,
		"status":  status,
	}).Debug("connection left room")
	return r
}

// GetRoom looks a room up by id.
func (reg *Registry) GetRoom(roomID int64) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[roomID]
	return r, ok
}

// RoomOf returns the room connID is seated in.
func (reg *Registry) RoomOf(connID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	roomID, ok := reg.byConn[connID]
	if !ok {
		return nil, false
	}
	r, ok := reg.rooms[roomID]
	return r, ok
}

// GetAllRooms summarizes every room, ordered by id.
func (reg *Registry) GetAllRooms() []protocol.RoomSummary {
	return reg.summaries(func(*Room) bool { return true })
}

// GetAvailableRooms summarizes the Waiting rooms that still have a free seat.
func (reg *Registry) GetAvailableRooms() []protocol.RoomSummary {
	return reg.summaries((*Room).availableUnsafe)
}

func (reg *Registry) summaries(keep func(*Room) bool) []protocol.RoomSummary {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]protocol.RoomSummary, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		r.mu.Lock()
		if keep(r) {
			out = append(out, r.summaryUnsafe())
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// CleanupFinishedRooms deletes Finished rooms older than the retention
// window, together with the mappings of anyone still seated in them. It
// returns the removed ids.
func (reg *Registry) CleanupFinishedRooms() []int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	cutoff := reg.now().Add(-reg.retention)
	var removed []int64
	for id, r := range reg.rooms {
		r.mu.Lock()
		expired := r.status == StatusFinished && !r.finishedAt.IsZero() && r.finishedAt.Before(cutoff)
		var seated []string
		if expired {
			for _, p := range r.players {
				seated = append(seated, p.ConnID)
			}
		}
		r.mu.Unlock()
		if !expired {
			continue
		}

		for _, connID := range seated {
			if reg.byConn[connID] == id {
				delete(reg.byConn, connID)
			}
		}
		delete(reg.rooms, id)
		removed = append(removed, id)
	}

	if len(removed) > 0 {
		sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
		reg.logger.WithField("rooms", removed).Info("cleaned up finished rooms")
	}
	return removed
}

// Len returns the number of rooms held.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
