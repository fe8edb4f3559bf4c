// internal/handlers/hub.go
package handlers

import (
	"context"
	"sync"

	"github.com/jason-s-yu/columns/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Connection is one live websocket client.
type Connection struct {
	ID       string
	PlayerID string
	Remote   string
	Cancel   context.CancelFunc
	OutChan  chan protocol.Envelope

	logger *logrus.Entry
}

// NewConnection builds a connection with an outbox of the given size.
func NewConnection(id, playerID string, outbox int, cancel context.CancelFunc, logger *logrus.Logger) *Connection {
	if outbox <= 0 {
		outbox = 32
	}
	if cancel == nil {
		cancel = func() {}
	}
	return &Connection{
		ID:       id,
		PlayerID: playerID,
		Cancel:   cancel,
		OutChan:  make(chan protocol.Envelope, outbox),
		logger:   logger.WithField("conn_id", id),
	}
}

// Write queues env without blocking. A full outbox drops the event for
// this connection only.
func (conn *Connection) Write(env protocol.Envelope) bool {
	select {
	case conn.OutChan <- env:
		return true
	default:
		conn.logger.Warnf("outbox full, dropped %s event", env.Type)
		return false
	}
}

// WriteError is a convenience to send an error event.
func (conn *Connection) WriteError(msg string) {
	conn.Write(protocol.ErrorEnvelope(msg))
}

// Hub tracks live connections and the room group each one listens to.
// A connection belongs to at most one group.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]*Connection
	groups  map[int64]map[string]*Connection
	groupOf map[string]int64
	logger  *logrus.Logger
}

// NewHub returns an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		conns:   make(map[string]*Connection),
		groups:  make(map[int64]map[string]*Connection),
		groupOf: make(map[string]int64),
		logger:  logger,
	}
}

// Register adds conn to the hub.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID] = conn
}

// Unregister removes connID and its group membership.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveGroupUnsafe(connID)
	delete(h.conns, connID)
}

// JoinGroup moves connID into roomID's group.
func (h *Hub) JoinGroup(connID string, roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	h.leaveGroupUnsafe(connID)
	g, ok := h.groups[roomID]
	if !ok {
		g = make(map[string]*Connection)
		h.groups[roomID] = g
	}
	g[connID] = conn
	h.groupOf[connID] = roomID
}

// LeaveGroup removes connID from its group and reports whether it had one.
func (h *Hub) LeaveGroup(connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveGroupUnsafe(connID)
}

func (h *Hub) leaveGroupUnsafe(connID string) bool {
	roomID, ok := h.groupOf[connID]
	if !ok {
		return false
	}
	delete(h.groupOf, connID)
	if g, ok := h.groups[roomID]; ok {
		delete(g, connID)
		if len(g) == 0 {
			delete(h.groups, roomID)
		}
	}
	return true
}

// DropGroup detaches every member of roomID's group.
func (h *Hub) DropGroup(roomID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for connID := range h.groups[roomID] {
		delete(h.groupOf, connID)
	}
	delete(h.groups, roomID)
}

// GroupOf returns the room group connID listens to.
func (h *Hub) GroupOf(connID string) (int64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id, ok := h.groupOf[connID]
	return id, ok
}

// BroadcastToRoom sends env to every member of roomID's group.
func (h *Hub) BroadcastToRoom(roomID int64, env protocol.Envelope) {
	h.BroadcastToRoomExcept(roomID, "", env)
}

// BroadcastToRoomExcept sends env to the group minus one connection.
func (h *Hub) BroadcastToRoomExcept(roomID int64, exceptConnID string, env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, conn := range h.groups[roomID] {
		if id != exceptConnID {
			conn.Write(env)
		}
	}
}

// BroadcastAll sends env to every connection.
func (h *Hub) BroadcastAll(env protocol.Envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		conn.Write(env)
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
