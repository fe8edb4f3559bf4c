// internal/handlers/game_server.go
package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/columns/internal/cache"
	"github.com/jason-s-yu/columns/internal/protocol"
	"github.com/jason-s-yu/columns/internal/room"
	"github.com/sirupsen/logrus"
)

// EventPublisher mirrors room activity outside the process. It is optional.
type EventPublisher interface {
	PublishRooms(ctx context.Context, rooms []protocol.RoomSummary) error
	PublishEvent(ctx context.Context, eventType string, data interface{}) error
	RecordResult(ctx context.Context, rec cache.MatchRecord) error
}

const publishTimeout = 2 * time.Second

// GameServer routes client messages to the registry and the running room
// loops, and fans the resulting events out through the hub.
type GameServer struct {
	Registry   *room.Registry
	Hub        *Hub
	Publisher  EventPublisher
	LoopConfig room.LoopConfig
	OutboxSize int

	logger *logrus.Logger

	mu    sync.Mutex
	loops map[int64]*room.Loop

	// publishMu serializes directory snapshots so the newest state lands last.
	publishMu sync.Mutex
}

// NewGameServer wires a server around reg and hub.
func NewGameServer(logger *logrus.Logger, reg *room.Registry, hub *Hub, loopCfg room.LoopConfig) *GameServer {
	return &GameServer{
		Registry:   reg,
		Hub:        hub,
		LoopConfig: loopCfg,
		OutboxSize: 32,
		logger:     logger,
		loops:      make(map[int64]*room.Loop),
	}
}

// Greet sends a fresh connection the room list and its identity.
func (gs *GameServer) Greet(conn *Connection) {
	conn.Write(protocol.NewEnvelope(protocol.TypeRoomsList, gs.Registry.GetAllRooms()))
	conn.Write(protocol.NewEnvelope(protocol.TypeWelcome, protocol.WelcomeData{
		ConnID:   conn.ID,
		PlayerID: conn.PlayerID,
	}))
}

// HandleMessage dispatches one decoded client message.
func (gs *GameServer) HandleMessage(conn *Connection, msg protocol.Message) {
	if protocol.IsMove(msg.Type) {
		// stale moves are dropped without telling the client
		if err := gs.move(conn, msg.Type); err != nil {
			gs.logger.WithField("conn_id", conn.ID).Debugf("dropped %s: %v", msg.Type, err)
		}
		return
	}

	switch msg.Type {
	case protocol.TypeCreateRoom:
		gs.createRoom(conn, protocol.DecodeCreateRoom(msg))
	case protocol.TypeJoinRoom:
		gs.joinRoom(conn, protocol.DecodeJoinRoom(msg))
	case protocol.TypeSpectateRoom:
		gs.spectateRoom(conn, protocol.DecodeSpectateRoom(msg))
	case protocol.TypeLeaveRoom:
		gs.leaveRoom(conn)
	case protocol.TypeRequestRoomsList:
		gs.roomsList(conn, protocol.DecodeRequestRoomsList(msg))
	case protocol.TypePing:
		conn.Write(protocol.NewEnvelope(protocol.TypePong, nil))
	default:
		gs.logger.WithField("conn_id", conn.ID).Warnf("unknown message type '%s'", msg.Type)
		conn.WriteError(fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

func (gs *GameServer) createRoom(conn *Connection, d protocol.CreateRoomData) {
	res := gs.Registry.CreateRoom(conn.ID, conn.PlayerID, d.PlayerName, d.RoomName)
	if !res.Success {
		conn.WriteError(res.Error)
		return
	}
	gs.afterLeave(conn.ID, res.Previous)

	gs.Hub.JoinGroup(conn.ID, res.Room.ID)
	conn.Write(protocol.NewEnvelope(protocol.TypeRoomCreated, protocol.RoomAck{
		Success: true,
		RoomID:  res.Room.ID,
		Room:    res.Room.Summary(),
	}))
	gs.broadcastRoomsList()
}

func (gs *GameServer) joinRoom(conn *Connection, d protocol.JoinRoomData) {
	res := gs.Registry.JoinRoom(int64(d.RoomID), conn.ID, conn.PlayerID, d.PlayerName)
	if !res.Success {
		gs.logger.WithFields(logrus.Fields{
			"conn_id": conn.ID,
			"room_id": int64(d.RoomID),
		}).Debugf("join refused: %s", res.Error)
		conn.WriteError(res.Error)
		gs.afterLeave(conn.ID, res.Previous)
		return
	}
	gs.afterLeave(conn.ID, res.Previous)

	r := res.Room
	gs.Hub.JoinGroup(conn.ID, r.ID)
	summary := r.Summary()
	conn.Write(protocol.NewEnvelope(protocol.TypeRoomJoined, protocol.RoomAck{
		Success: true,
		RoomID:  r.ID,
		Room:    summary,
	}))
	gs.Hub.BroadcastToRoomExcept(r.ID, conn.ID, protocol.NewEnvelope(protocol.TypePlayerJoined, protocol.PlayerJoinedData{
		PlayerName: d.PlayerName,
		Room:       summary,
	}))

	if r.CanStart() {
		gs.startGame(r)
	}
	gs.broadcastRoomsList()
}

func (gs *GameServer) spectateRoom(conn *Connection, d protocol.SpectateRoomData) {
	if _, seated := gs.Registry.RoomOf(conn.ID); seated {
		conn.WriteError(room.ErrAlreadyInRoom.Error())
		return
	}
	r, ok := gs.Registry.GetRoom(int64(d.RoomID))
	if !ok {
		conn.WriteError(room.ErrRoomNotFound.Error())
		return
	}

	gs.Hub.JoinGroup(conn.ID, r.ID)
	conn.Write(protocol.NewEnvelope(protocol.TypeSpectatorJoined, protocol.SpectatorJoinedData{
		Success: true,
		RoomID:  r.ID,
	}))

	loop := gs.loop(r.ID)
	if loop == nil {
		return
	}
	states, ok := loop.Snapshot()
	if !ok {
		return
	}
	conn.Write(protocol.NewEnvelope(protocol.TypeGameSetup, loop.Setup()))
	conn.Write(protocol.NewEnvelope(protocol.TypeGameUpdate, states))
}

func (gs *GameServer) leaveRoom(conn *Connection) {
	res := gs.Registry.LeaveRoom(conn.ID)
	wasListening := gs.Hub.LeaveGroup(conn.ID)
	if !res.Success && !wasListening {
		conn.WriteError(res.Error)
		return
	}
	conn.Write(protocol.NewEnvelope(protocol.TypeLeftRoom, protocol.LeftRoomData{Success: true}))
	if res.Success {
		gs.afterLeave(conn.ID, res.Room)
	}
}

// Disconnect treats a dropped connection as an explicit leave.
func (gs *GameServer) Disconnect(conn *Connection) {
	gs.Hub.Unregister(conn.ID)
	if res := gs.Registry.LeaveRoom(conn.ID); res.Success {
		gs.afterLeave(conn.ID, res.Room)
	}
}

// afterLeave propagates a departure from r: the remaining members are told,
// a match that just lost a player is forfeited and its loop stopped.
func (gs *GameServer) afterLeave(connID string, r *room.Room) {
	if r == nil {
		return
	}
	status := r.Status()

	if loop := gs.loop(r.ID); loop != nil && status != room.StatusPlaying {
		loop.PlayerLeft(connID)
		gs.stopLoop(loop)
	}

	if status == room.StatusAbandoned {
		gs.Hub.DropGroup(r.ID)
	} else {
		gs.Hub.BroadcastToRoom(r.ID, protocol.NewEnvelope(protocol.TypePlayerLeft, protocol.PlayerLeftData{
			Room: r.Summary(),
		}))
	}
	gs.broadcastRoomsList()
}

// move forwards a piece command to the sender's room loop.
func (gs *GameServer) move(conn *Connection, move string) error {
	r, ok := gs.Registry.RoomOf(conn.ID)
	if !ok {
		return room.ErrNotInRoom
	}
	loop := gs.loop(r.ID)
	if loop == nil || !loop.Submit(conn.ID, move) {
		return room.ErrInvalidCommand
	}
	return nil
}

func (gs *GameServer) roomsList(conn *Connection, d protocol.RequestRoomsListData) {
	rooms := gs.Registry.GetAllRooms()
	if d.OnlyAvailable {
		rooms = gs.Registry.GetAvailableRooms()
	}
	conn.Write(protocol.NewEnvelope(protocol.TypeRoomsList, rooms))
}

// startGame moves r to Playing and launches its loop. Both happen under mu,
// which afterLeave also takes to find the loop, so a departure racing the
// start always reaches a registered, started loop.
func (gs *GameServer) startGame(r *room.Room) {
	gs.mu.Lock()
	engine, err := r.StartGame()
	if err != nil {
		gs.mu.Unlock()
		return
	}
	loop := room.NewLoop(r, engine, gs.Hub, gs.LoopConfig, gs.logger)
	loop.OnFinish = func(res room.GameResult) { gs.gameFinished(loop, res) }
	gs.loops[r.ID] = loop
	loop.Start()
	gs.mu.Unlock()

	gs.publishEvent("gameStarted", map[string]interface{}{"roomId": r.ID})
}

// gameFinished runs on the loop goroutine.
func (gs *GameServer) gameFinished(loop *room.Loop, res room.GameResult) {
	gs.mu.Lock()
	if gs.loops[loop.RoomID()] == loop {
		delete(gs.loops, loop.RoomID())
	}
	gs.mu.Unlock()

	if gs.Publisher != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			rec := cache.MatchRecord{
				RoomID:      res.RoomID,
				Winner:      res.Winner,
				DurationMS:  res.Duration.Milliseconds(),
				FinalScores: res.FinalScores,
			}
			if err := gs.Publisher.RecordResult(ctx, rec); err != nil {
				gs.logger.Warnf("failed to record result of room %d: %v", res.RoomID, err)
			}
		}()
	}
	gs.publishEvent("gameOver", map[string]interface{}{"roomId": res.RoomID, "winner": res.Winner})

	// the room list takes the registry lock; keep it off the loop goroutine
	go gs.broadcastRoomsList()
}

func (gs *GameServer) loop(roomID int64) *room.Loop {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return gs.loops[roomID]
}

func (gs *GameServer) stopLoop(loop *room.Loop) {
	gs.mu.Lock()
	if gs.loops[loop.RoomID()] == loop {
		delete(gs.loops, loop.RoomID())
	}
	gs.mu.Unlock()
	loop.Stop()
}

// ActiveGames returns the number of running room loops.
func (gs *GameServer) ActiveGames() int {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	return len(gs.loops)
}

// Shutdown stops every running loop.
func (gs *GameServer) Shutdown() {
	gs.mu.Lock()
	loops := make([]*room.Loop, 0, len(gs.loops))
	for _, l := range gs.loops {
		loops = append(loops, l)
	}
	gs.loops = make(map[int64]*room.Loop)
	gs.mu.Unlock()

	for _, l := range loops {
		l.Stop()
	}
}

// RunCleanup drops expired Finished rooms every interval until ctx ends.
func (gs *GameServer) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed := gs.Registry.CleanupFinishedRooms()
			for _, id := range removed {
				gs.Hub.DropGroup(id)
			}
			if len(removed) > 0 {
				gs.broadcastRoomsList()
			}
		}
	}
}

func (gs *GameServer) broadcastRoomsList() {
	rooms := gs.Registry.GetAllRooms()
	gs.Hub.BroadcastAll(protocol.NewEnvelope(protocol.TypeRoomsList, rooms))

	if gs.Publisher != nil {
		go gs.publishRooms()
	}
}

// publishRooms reads the directory under publishMu, so a later call never
// publishes an older snapshot than an earlier one.
func (gs *GameServer) publishRooms() {
	gs.publishMu.Lock()
	defer gs.publishMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := gs.Publisher.PublishRooms(ctx, gs.Registry.GetAllRooms()); err != nil {
		gs.logger.Warnf("failed to publish room directory: %v", err)
	}
}

func (gs *GameServer) publishEvent(eventType string, data interface{}) {
	if gs.Publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := gs.Publisher.PublishEvent(ctx, eventType, data); err != nil {
			gs.logger.Warnf("failed to publish %s: %v", eventType, err)
		}
	}()
}
