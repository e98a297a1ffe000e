package messaging

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbit/chat-app/internal/chat"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	out []published
	err error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, published{subject, data})
	return nil
}

func testRoom() *chat.Room {
	return &chat.Room{
		ID:              "room-1",
		Participants:    [2]string{"a", "b"},
		CommonInterests: []string{"music"},
		CreatedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisher_RoomLifecycle(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn)
	fixed := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	p.RoomOpened(testRoom())
	p.RoomClosed(testRoom(), "b")
	require.Len(t, conn.out, 2)

	assert.Equal(t, SubjectRoomOpened, conn.out[0].subject)
	var opened RoomEvent
	require.NoError(t, json.Unmarshal(conn.out[0].data, &opened))
	assert.Equal(t, "room-1", opened.RoomID)
	assert.Equal(t, [2]string{"a", "b"}, opened.Participants)
	assert.Equal(t, []string{"music"}, opened.CommonInterests)
	assert.Empty(t, opened.Initiator)
	assert.True(t, fixed.Equal(opened.At))

	assert.Equal(t, SubjectRoomClosed, conn.out[1].subject)
	var closed RoomEvent
	require.NoError(t, json.Unmarshal(conn.out[1].data, &closed))
	assert.Equal(t, "b", closed.Initiator)
}

func TestPublisher_Report(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn)

	require.NoError(t, p.PublishReport(ReportEvent{RoomID: "room-1", ReporterID: "a", ReportedID: "b", Reason: "spam"}))
	require.Len(t, conn.out, 1)
	assert.Equal(t, SubjectReport, conn.out[0].subject)

	var ev ReportEvent
	require.NoError(t, json.Unmarshal(conn.out[0].data, &ev))
	assert.Equal(t, "spam", ev.Reason)
	assert.False(t, ev.At.IsZero())
}

func TestPublisher_FailureIsReturnedNotFatal(t *testing.T) {
	p := NewPublisher(&fakeConn{err: errors.New("nats: connection closed")})

	p.RoomOpened(testRoom())
	assert.Error(t, p.PublishReport(ReportEvent{RoomID: "r"}))
}

// TestPublisher_LiveNATS runs against TEST_NATS_URL when it is set.
func TestPublisher_LiveNATS(t *testing.T) {
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set")
	}

	cfg := DefaultNATSConfig()
	cfg.URL = url
	cfg.MaxReconnects = 0
	nc, err := Connect(cfg)
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(SubjectRoomOpened)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	NewPublisher(nc).RoomOpened(testRoom())

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var ev RoomEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, "room-1", ev.RoomID)

	var _ Conn = (*nats.Conn)(nil)
}
