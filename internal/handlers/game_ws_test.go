package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jason-s-yu/columns/internal/auth"
	"github.com/jason-s-yu/columns/internal/game"
	"github.com/jason-s-yu/columns/internal/protocol"
	"github.com/jason-s-yu/columns/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*GameServer, *httptest.Server) {
	t.Helper()
	logger := quietLogger()
	issuer, err := auth.NewIssuer(0)
	require.NoError(t, err)

	gs := NewGameServer(logger, room.NewRegistry(logger), NewHub(logger), room.LoopConfig{
		TickInterval: time.Hour,
		StartDelay:   0,
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", RoomWSHandler(logger, gs, issuer))
	mux.Handle("/rooms", ListRoomsHandler(gs))
	mux.Handle("/healthz", HealthHandler(gs))

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		gs.Shutdown()
	})
	return gs, srv
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type testClient struct {
	t      *testing.T
	ctx    context.Context
	c      *websocket.Conn
	connID string
}

func dialRaw(t *testing.T, srv *httptest.Server, subprotocols ...string) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: subprotocols})
	require.NoError(t, err)
	return c, ctx
}

// dial connects and consumes the greeting.
func dial(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()
	c, ctx := dialRaw(t, srv, Subprotocol)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })

	cl := &testClient{t: t, ctx: ctx, c: c}
	cl.expect(protocol.TypeRoomsList)
	var welcome protocol.WelcomeData
	cl.decode(cl.expect(protocol.TypeWelcome), &welcome)
	require.NotEmpty(t, welcome.ConnID)
	require.NotEmpty(t, welcome.PlayerID)
	cl.connID = welcome.ConnID
	return cl
}

func (cl *testClient) send(msgType string, data interface{}) {
	cl.t.Helper()
	require.NoError(cl.t, wsjson.Write(cl.ctx, cl.c, protocol.NewEnvelope(msgType, data)))
}

// expect reads frames until one of msgType arrives and returns its data.
func (cl *testClient) expect(msgType string) json.RawMessage {
	cl.t.Helper()
	for {
		var f frame
		require.NoError(cl.t, wsjson.Read(cl.ctx, cl.c, &f), "waiting for %s", msgType)
		if f.Type == msgType {
			return f.Data
		}
	}
}

func (cl *testClient) decode(data json.RawMessage, v interface{}) {
	cl.t.Helper()
	require.NoError(cl.t, json.Unmarshal(data, v))
}

func (cl *testClient) expectError() string {
	var e protocol.ErrorData
	cl.decode(cl.expect(protocol.TypeError), &e)
	return e.Message
}

// startMatch creates a room with a and seats b, returning the room id once
// both clients saw the game start.
func startMatch(t *testing.T, a, b *testClient) int64 {
	t.Helper()
	a.send(protocol.TypeCreateRoom, map[string]string{"playerName": "ana", "roomName": "duel"})
	var created protocol.RoomAck
	a.decode(a.expect(protocol.TypeRoomCreated), &created)
	require.True(t, created.Success)
	assert.Equal(t, "duel", created.Room.RoomName)

	b.send(protocol.TypeJoinRoom, map[string]interface{}{"roomId": created.RoomID, "playerName": "bo"})
	var joined protocol.RoomAck
	b.decode(b.expect(protocol.TypeRoomJoined), &joined)
	require.True(t, joined.Success)
	assert.Equal(t, 2, joined.Room.PlayerCount)

	var pj protocol.PlayerJoinedData
	a.decode(a.expect(protocol.TypePlayerJoined), &pj)
	assert.Equal(t, "bo", pj.PlayerName)

	for _, cl := range []*testClient{a, b} {
		var setup protocol.GameSetupData
		cl.decode(cl.expect(protocol.TypeGameSetup), &setup)
		require.Len(t, setup.Players, 2)
		assert.Equal(t, "ana", setup.Players[0].PlayerName)
		assert.Equal(t, 12, setup.Players[0].SizeY)
		cl.expect(protocol.TypeGameStart)
		cl.expect(protocol.TypeGameUpdate)
	}
	return created.RoomID
}

func TestGreetingOnConnect(t *testing.T) {
	_, srv := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	assert.NotEqual(t, a.connID, b.connID)
}

func TestMatchFlowAndForfeitOnDisconnect(t *testing.T) {
	gs, srv := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	startMatch(t, a, b)
	assert.Equal(t, 1, gs.ActiveGames())

	a.send(protocol.TypeMoveLeft, nil)
	var update protocol.GameUpdateData
	a.decode(a.expect(protocol.TypeGameUpdate), &update)
	require.Len(t, update, 2)
	nodes := update[a.connID].UpdatedNodes
	require.NotEmpty(t, nodes)
	assert.Equal(t, game.SpawnColumn-1, nodes[len(nodes)-1].X)
	assert.Equal(t, "ana", update[a.connID].PlayerName)

	require.NoError(t, a.c.Close(websocket.StatusNormalClosure, "bye"))

	var over protocol.GameOverData
	b.decode(b.expect(protocol.TypeGameOver), &over)
	assert.Equal(t, "bo", over.Winner)
	assert.Len(t, over.FinalScores, 2)

	var left protocol.PlayerLeftData
	b.decode(b.expect(protocol.TypePlayerLeft), &left)
	assert.Equal(t, "finished", left.Room.Status)

	assert.Eventually(t, func() bool { return gs.ActiveGames() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestExplicitLeaveDuringMatch(t *testing.T) {
	gs, srv := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	startMatch(t, a, b)

	b.send(protocol.TypeLeaveRoom, nil)
	var ack protocol.LeftRoomData
	b.decode(b.expect(protocol.TypeLeftRoom), &ack)
	assert.True(t, ack.Success)

	var over protocol.GameOverData
	a.decode(a.expect(protocol.TypeGameOver), &over)
	assert.Equal(t, "ana", over.Winner)

	assert.Eventually(t, func() bool { return gs.ActiveGames() == 0 }, 2*time.Second, 10*time.Millisecond)

	// moves after the match are silently ignored
	a.send(protocol.TypeDrop, nil)
	a.send(protocol.TypePing, nil)
	a.expect(protocol.TypePong)
}

func TestJoinErrorsAreReported(t *testing.T) {
	_, srv := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	c := dial(t, srv)

	a.send(protocol.TypeJoinRoom, map[string]interface{}{"roomId": "42"})
	assert.Equal(t, "RoomNotFound", a.expectError())

	a.send(protocol.TypeLeaveRoom, nil)
	assert.Equal(t, "NotInRoom", a.expectError())

	roomID := startMatch(t, a, b)
	c.send(protocol.TypeJoinRoom, map[string]interface{}{"roomId": roomID, "playerName": "cy"})
	assert.Equal(t, "RoomNotWaiting", c.expectError())
}

func TestMalformedAndUnknownMessages(t *testing.T) {
	_, srv := newTestServer(t)
	a := dial(t, srv)

	require.NoError(t, a.c.Write(a.ctx, websocket.MessageText, []byte("{nope")))
	assert.Equal(t, "Invalid JSON format", a.expectError())

	a.send("fly", nil)
	assert.Equal(t, "Unknown message type: fly", a.expectError())

	// commands outside a room are dropped without an answer
	a.send(protocol.TypeMoveLeft, nil)
	a.send(protocol.TypePing, nil)
	a.expect(protocol.TypePong)
}

func TestRoomsListFiltering(t *testing.T) {
	_, srv := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	c := dial(t, srv)
	d := dial(t, srv)
	startMatch(t, a, b)

	c.send(protocol.TypeCreateRoom, map[string]string{"playerName": "cy"})
	var created protocol.RoomAck
	c.decode(c.expect(protocol.TypeRoomCreated), &created)
	assert.Equal(t, "cy's room", created.Room.RoomName)

	d.send(protocol.TypeRequestRoomsList, map[string]bool{"onlyAvailable": true})
	var available []protocol.RoomSummary
	for {
		d.decode(d.expect(protocol.TypeRoomsList), &available)
		if len(available) == 1 && available[0].RoomID == created.RoomID {
			break
		}
	}

	d.send(protocol.TypeRequestRoomsList, nil)
	var all []protocol.RoomSummary
	for {
		d.decode(d.expect(protocol.TypeRoomsList), &all)
		if len(all) == 2 {
			break
		}
	}
	assert.Equal(t, "playing", all[0].Status)
}

func TestSpectatorReceivesCurrentMatch(t *testing.T) {
	_, srv := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)
	roomID := startMatch(t, a, b)

	s := dial(t, srv)
	s.send(protocol.TypeSpectateRoom, map[string]interface{}{"roomId": roomID})
	var joined protocol.SpectatorJoinedData
	s.decode(s.expect(protocol.TypeSpectatorJoined), &joined)
	assert.True(t, joined.Success)
	assert.Equal(t, roomID, joined.RoomID)

	var setup protocol.GameSetupData
	s.decode(s.expect(protocol.TypeGameSetup), &setup)
	assert.Len(t, setup.Players, 2)
	var update protocol.GameUpdateData
	s.decode(s.expect(protocol.TypeGameUpdate), &update)
	assert.Len(t, update, 2)

	// spectators see live updates but cannot move anyone
	a.send(protocol.TypeRotatePiece, nil)
	s.expect(protocol.TypeGameUpdate)

	s.send(protocol.TypeSpectateRoom, map[string]interface{}{"roomId": 999})
	assert.Equal(t, "RoomNotFound", s.expectError())
}

func TestBadSubprotocolIsRejected(t *testing.T) {
	_, srv := newTestServer(t)
	c, ctx := dialRaw(t, srv)
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, BadSubprotocolError, websocket.CloseStatus(err))
}

func TestRoomsAndHealthEndpoints(t *testing.T) {
	gs, srv := newTestServer(t)
	a := dial(t, srv)
	a.send(protocol.TypeCreateRoom, map[string]string{"playerName": "ana"})
	a.expect(protocol.TypeRoomCreated)

	resp, err := http.Get(srv.URL + "/rooms?available=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var rooms []protocol.RoomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "ana's room", rooms[0].RoomName)

	post, err := http.Post(srv.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	post.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, post.StatusCode)

	rec := httptest.NewRecorder()
	HealthHandler(gs).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Rooms)
	assert.Equal(t, 1, health.Connections)
}
