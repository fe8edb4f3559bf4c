// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jason-s-yu/columns/internal/auth"
	"github.com/jason-s-yu/columns/internal/middleware"
	"github.com/jason-s-yu/columns/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "columns"

const (
	pingInterval = 30 * time.Second
	pingTimeout  = 15 * time.Second
	writeTimeout = 5 * time.Second
	readLimit    = 4096
)

// RoomWSHandler upgrades the request, identifies the player through the
// identity cookie and serves the room protocol until the client goes away.
// A dropped connection leaves its room exactly like leaveRoom.
func RoomWSHandler(logger *logrus.Logger, gs *GameServer, issuer *auth.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// the cookie has to be set before the upgrade response is written
		playerID, err := auth.EnsureIdentity(w, r, issuer)
		if err != nil {
			logger.Warnf("identity failed for %s: %v", r.RemoteAddr, err)
			http.Error(w, "identity unavailable", http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the columns subprotocol")
			return
		}
		c.SetReadLimit(readLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := NewConnection(uuid.NewString(), playerID, gs.OutboxSize, cancel, logger)
		conn.Remote = r.RemoteAddr
		gs.Hub.Register(conn)
		middleware.LogWebSocketConnect(logger, conn.Remote, conn.ID, playerID)

		gs.Greet(conn)
		go writePump(ctx, c, conn, logger)

		readErr := readPump(ctx, c, gs, conn, logger)

		gs.Disconnect(conn)
		middleware.LogWebSocketDisconnect(logger, conn.Remote, conn.ID, readErr)
	}
}

// readPump decodes client frames and hands them to the server until the
// connection fails or ctx ends. Normal closures return nil.
func readPump(ctx context.Context, c *websocket.Conn, gs *GameServer, conn *Connection, logger *logrus.Logger) error {
	log := logger.WithField("conn_id", conn.ID)
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if typ != websocket.MessageText {
			log.Warnf("ignoring non-text message type %d", typ)
			continue
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			log.Debugf("bad frame: %v", err)
			conn.WriteError("Invalid JSON format")
			continue
		}
		log.Tracef("received %s", msg.Type)
		gs.HandleMessage(conn, msg)
	}
}

// writePump drains the connection's outbox and pings the client periodically.
func writePump(ctx context.Context, c *websocket.Conn, conn *Connection, logger *logrus.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	log := logger.WithField("conn_id", conn.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-conn.OutChan:
			data, err := json.Marshal(env)
			if err != nil {
				log.Warnf("failed to marshal outgoing %s: %v", env.Type, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				log.Warnf("failed to write to websocket: %v", err)
				// the read side notices the broken connection
				conn.Cancel()
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Warnf("ping failed: %v. Assuming disconnect.", err)
				conn.Cancel()
				return
			}
		}
	}
}
