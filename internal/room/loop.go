// internal/room/loop.go
package room

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/columns/internal/game"
	"github.com/jason-s-yu/columns/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Broadcaster delivers an event to every connection grouped under a room.
// Delivery is best effort and must not block on slow receivers.
type Broadcaster interface {
	BroadcastToRoom(roomID int64, env protocol.Envelope)
}

// LoopConfig controls the pace of a running match.
type LoopConfig struct {
	TickInterval time.Duration
	StartDelay   time.Duration
	QueueSize    int
}

// DefaultLoopConfig matches the classic pace: a 2s countdown, then a row every 500ms.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TickInterval: 500 * time.Millisecond,
		StartDelay:   2 * time.Second,
		QueueSize:    64,
	}
}

type commandKind int

const (
	cmdMove commandKind = iota
	cmdLeave
	cmdSnapshot
)

type command struct {
	kind   commandKind
	connID string
	move   string
	done   chan struct{}
	reply  chan protocol.GameUpdateData
}

// Loop is the single writer of a Playing room's engine. Ticks, piece
// commands, departures and snapshot requests are all serialized through
// one goroutine.
type Loop struct {
	room   *Room
	engine *game.ColumnsGame
	out    Broadcaster
	cfg    LoopConfig
	logger *logrus.Entry

	// OnFinish runs on the loop goroutine after gameOver was broadcast.
	// It must not call Stop.
	OnFinish func(GameResult)

	cmds      chan command
	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	// owned by the loop goroutine
	started  bool
	finished bool
}

// NewLoop prepares the loop for a room whose StartGame returned engine.
func NewLoop(r *Room, engine *game.ColumnsGame, out Broadcaster, cfg LoopConfig, logger *logrus.Logger) *Loop {
	def := DefaultLoopConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.StartDelay < 0 {
		cfg.StartDelay = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		room:   r,
		engine: engine,
		out:    out,
		cfg:    cfg,
		logger: logger.WithField("room_id", r.ID),
		cmds:   make(chan command, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// RoomID returns the id of the room this loop drives.
func (l *Loop) RoomID() int64 { return l.room.ID }

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Start broadcasts gameSetup and launches the loop goroutine. gameStart and
// the first gameUpdate follow after the start delay.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		l.broadcast(protocol.TypeGameSetup, l.Setup())
		go l.run()
	})
}

// Stop cancels the loop and waits for it to exit. It is safe to call more
// than once and from any goroutine except the loop's own. No event is
// broadcast after Stop returns.
func (l *Loop) Stop() {
	l.stopOnce.Do(l.cancel)
	// a loop that was never started has nothing to wait for
	l.startOnce.Do(func() { close(l.done) })
	<-l.done
}

// Submit queues a piece command from connID. It returns false when the
// loop has already exited.
func (l *Loop) Submit(connID, move string) bool {
	return l.send(command{kind: cmdMove, connID: connID, move: move})
}

// PlayerLeft freezes connID's board and, if the room is no longer Playing,
// ends the match as a forfeit. It returns after the loop has handled it.
func (l *Loop) PlayerLeft(connID string) {
	c := command{kind: cmdLeave, connID: connID, done: make(chan struct{})}
	if !l.send(c) {
		return
	}
	select {
	case <-c.done:
	case <-l.done:
	}
}

// Snapshot returns every player's current state, for late spectators.
func (l *Loop) Snapshot() (protocol.GameUpdateData, bool) {
	c := command{kind: cmdSnapshot, reply: make(chan protocol.GameUpdateData, 1)}
	if !l.send(c) {
		return nil, false
	}
	select {
	case states := <-c.reply:
		return states, true
	case <-l.done:
		return nil, false
	}
}

func (l *Loop) send(c command) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.cmds <- c:
		return true
	case <-l.done:
		return false
	}
}

func (l *Loop) run() {
	defer close(l.done)
	l.logger.Info("room loop started")
	defer l.logger.Info("room loop stopped")

	if l.forfeitIfDeparted() {
		return
	}

	startTimer := time.NewTimer(l.cfg.StartDelay)
	defer startTimer.Stop()

	var ticker *time.Ticker
	var tickC <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-startTimer.C:
			if l.ctx.Err() != nil {
				return
			}
			l.started = true
			l.broadcast(protocol.TypeGameStart, protocol.GameStartData{
				Room:      l.room.Summary(),
				GameState: l.states(),
			})
			l.broadcastUpdate()
			ticker = time.NewTicker(l.cfg.TickInterval)
			tickC = ticker.C
		case <-tickC:
			if l.ctx.Err() != nil {
				return
			}
			if l.forfeitIfDeparted() {
				return
			}
			l.tick()
		case c := <-l.cmds:
			if l.ctx.Err() != nil {
				return
			}
			l.handle(c)
		}
		if l.finished {
			return
		}
	}
}

// forfeitIfDeparted ends the match when the room already left Playing
// without the loop hearing about it, e.g. a seat emptied between StartGame
// and the loop being registered. Sessions whose seat is gone are frozen
// first so they cannot win.
func (l *Loop) forfeitIfDeparted() bool {
	if !l.room.Status().Terminal() {
		return false
	}
	for _, p := range l.engine.Players() {
		if !l.room.HasPlayer(p.ConnID) {
			l.engine.Deactivate(p.ConnID)
		}
	}
	l.room.SyncScores(l.engine.Scores())
	l.finish("player left before the loop was told")
	return true
}

func (l *Loop) tick() {
	alive := l.engine.Tick()
	l.room.SyncScores(l.engine.Scores())
	if !alive {
		l.finish("all players dead")
		return
	}
	l.broadcastUpdate()
}

func (l *Loop) handle(c command) {
	switch c.kind {
	case cmdSnapshot:
		c.reply <- l.states()

	case cmdLeave:
		defer close(c.done)
		l.engine.Deactivate(c.connID)
		l.room.SyncScores(l.engine.Scores())
		if l.room.Status() != StatusPlaying || !l.engine.AnyAlive() {
			l.finish("player left")
			return
		}
		l.broadcastUpdate()

	case cmdMove:
		if !l.started {
			l.logger.WithField("conn_id", c.connID).Debugf("ignoring %s before start", c.move)
			return
		}
		if _, ok := l.engine.Player(c.connID); !ok {
			return
		}
		if !l.apply(c.connID, c.move) {
			l.logger.WithField("conn_id", c.connID).Debugf("unknown move %q", c.move)
			return
		}
		l.room.SyncScores(l.engine.Scores())
		if !l.engine.AnyAlive() {
			l.finish("all players dead")
			return
		}
		l.broadcastUpdate()
	}
}

// apply runs one piece command. The return value reports whether move was
// recognized, not whether the piece moved.
func (l *Loop) apply(connID, move string) bool {
	switch move {
	case protocol.TypeMoveLeft:
		l.engine.MoveLeft(connID)
	case protocol.TypeMoveRight:
		l.engine.MoveRight(connID)
	case protocol.TypeMoveDown:
		l.engine.MoveDown(connID)
	case protocol.TypeRotatePiece:
		l.engine.RotatePiece(connID)
	case protocol.TypeDrop:
		l.engine.Drop(connID)
	default:
		return false
	}
	return true
}

func (l *Loop) finish(reason string) {
	l.finished = true

	winnerConn := ""
	if w := l.engine.Winner(); w != nil {
		winnerConn = w.ConnID
	}
	res := l.room.EndGame(winnerConn)

	l.broadcastUpdate()
	l.broadcast(protocol.TypeGameOver, protocol.GameOverData{
		Winner:      res.Winner,
		FinalScores: res.FinalScores,
	})
	l.logger.WithFields(logrus.Fields{
		"winner":   res.Winner,
		"duration": res.Duration,
		"reason":   reason,
	}).Info("game over")

	if l.OnFinish != nil {
		l.OnFinish(res)
	}
}

// Setup describes the boards of the match. Player identities never change
// after StartGame, so it is safe to call from any goroutine.
func (l *Loop) Setup() protocol.GameSetupData {
	players := l.engine.Players()
	setup := protocol.GameSetupData{
		RoomID:  l.room.ID,
		Players: make([]protocol.GridSetup, 0, len(players)),
	}
	for i, p := range players {
		setup.Players = append(setup.Players, protocol.NewGridSetup(p.PlayerID, i, p.Name, p.ConnID))
	}
	return setup
}

func (l *Loop) states() protocol.GameUpdateData {
	return protocol.GameUpdateData(l.engine.AllStates())
}

func (l *Loop) broadcastUpdate() {
	l.broadcast(protocol.TypeGameUpdate, l.states())
}

func (l *Loop) broadcast(eventType string, data interface{}) {
	if l.out == nil {
		return
	}
	l.out.BroadcastToRoom(l.room.ID, protocol.NewEnvelope(eventType, data))
}
