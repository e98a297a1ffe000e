package ws

import (
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit/chat-app/internal/protocol"
)

// pipeConn returns a server-side Connection and the client end of the pipe.
func pipeConn(t *testing.T, id string) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return newConnection(id, server, time.Now()), client
}

// roundTrip runs fn (which writes to c) and returns the frame the client
// end received.
func roundTrip(t *testing.T, client net.Conn, fn func()) (string, interface{}) {
	t.Helper()
	go fn()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	data, err := wsutil.ReadServerText(client)
	require.NoError(t, err)

	msgType, msg, err := protocol.ParseServerMessage(data)
	require.NoError(t, err)
	return msgType, msg
}

func TestDispatch_Ping(t *testing.T) {
	d := NewMessageDispatcher()
	c, client := pipeConn(t, "c1")

	msgType, _ := roundTrip(t, client, func() { d.Dispatch(c, []byte(`{"type":"ping"}`)) })
	assert.Equal(t, protocol.TypePong, msgType)
}

func TestDispatch_ParseError(t *testing.T) {
	d := NewMessageDispatcher()
	c, client := pipeConn(t, "c1")

	msgType, msg := roundTrip(t, client, func() { d.Dispatch(c, []byte(`not json`)) })
	require.Equal(t, protocol.TypeError, msgType)
	assert.Equal(t, protocol.CodeParseError, msg.(protocol.ErrorMsg).Code)
}

func TestDispatch_UnknownType(t *testing.T) {
	d := NewMessageDispatcher()
	c, client := pipeConn(t, "c1")

	msgType, msg := roundTrip(t, client, func() { d.Dispatch(c, []byte(`{"type":"teleport"}`)) })
	require.Equal(t, protocol.TypeError, msgType)
	assert.Equal(t, protocol.CodeUnsupportedType, msg.(protocol.ErrorMsg).Code)
}

func TestDispatch_UnregisteredType(t *testing.T) {
	d := NewMessageDispatcher()
	c, client := pipeConn(t, "c1")

	msgType, msg := roundTrip(t, client, func() { d.Dispatch(c, []byte(`{"type":"leave"}`)) })
	require.Equal(t, protocol.TypeError, msgType)
	assert.Equal(t, protocol.CodeUnsupportedType, msg.(protocol.ErrorMsg).Code)
}

func TestDispatch_RoutesToHandler(t *testing.T) {
	d := NewMessageDispatcher()
	c, _ := pipeConn(t, "c1")

	var gotType string
	var got protocol.ChatMsg
	d.Register(protocol.TypeMessage, func(conn *Connection, msgType string, msg interface{}) {
		assert.Same(t, c, conn)
		gotType = msgType
		got = msg.(protocol.ChatMsg)
	})

	d.Dispatch(c, []byte(`{"type":"message","room_id":"r1","text":"hello"}`))
	assert.Equal(t, protocol.TypeMessage, gotType)
	assert.Equal(t, "r1", got.RoomID)
	assert.Equal(t, "hello", got.Text)
}

func TestDispatch_TypingAndStopTypingShareHandlerShape(t *testing.T) {
	d := NewMessageDispatcher()
	c, _ := pipeConn(t, "c1")

	var seen []string
	h := func(_ *Connection, msgType string, msg interface{}) {
		_, ok := msg.(protocol.TypingMsg)
		assert.True(t, ok)
		seen = append(seen, msgType)
	}
	d.Register(protocol.TypeTyping, h)
	d.Register(protocol.TypeStopTyping, h)

	d.Dispatch(c, []byte(`{"type":"typing","room_id":"r"}`))
	d.Dispatch(c, []byte(`{"type":"stop_typing","room_id":"r"}`))
	assert.Equal(t, []string{protocol.TypeTyping, protocol.TypeStopTyping}, seen)
}
