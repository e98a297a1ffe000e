package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orbit/chat-app/internal/client"
)

func TestRenderer_PrintsOnlyChanges(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	at := time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)

	r.render(client.View{State: client.StateSearching, Status: client.StatusSearching})
	r.render(client.View{State: client.StateSearching, Status: client.StatusSearching})

	matched := client.View{
		State:           client.StateMatched,
		Status:          client.StatusMatched,
		RoomID:          "room-1",
		CommonInterests: []string{"music"},
		Transcript:      []client.Line{{From: "system", Text: client.StatusMatched, At: at}},
	}
	r.render(matched)

	matched.PartnerTyping = true
	r.render(matched)

	matched.PartnerTyping = false
	matched.Transcript = append(matched.Transcript, client.Line{From: "stranger", Text: "hi", At: at})
	r.render(matched)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, client.StatusSearching))
	assert.Equal(t, 1, strings.Count(out, client.StatusMatched))
	assert.Contains(t, out, "You both like: music")
	assert.Contains(t, out, "stranger is typing")
	assert.Contains(t, out, "[15:04] stranger: hi")
}

func TestRenderer_NewRoomRestartsTranscript(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	first := client.View{State: client.StateMatched, RoomID: "room-1", Status: client.StatusMatched, Transcript: []client.Line{
		{From: "system", Text: client.StatusMatched},
		{From: "you", Text: "one"},
		{From: "stranger", Text: "two"},
	}}
	r.render(first)

	second := client.View{State: client.StateMatched, RoomID: "room-2", Status: client.StatusMatched, Transcript: []client.Line{
		{From: "system", Text: client.StatusMatched},
	}}
	buf.Reset()
	r.render(second)

	assert.Equal(t, "-- "+client.StatusMatched+"\n", buf.String())
}

func TestRenderer_HomeClearsTranscript(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.render(client.View{State: client.StateEnded, Status: client.StatusYouLeft, Transcript: []client.Line{
		{From: "you", Text: "bye"},
	}})
	r.render(client.View{State: client.StateIdle})
	buf.Reset()

	r.render(client.View{State: client.StateSearching, Status: client.StatusSearching})
	assert.Equal(t, "-- "+client.StatusSearching+"\n", buf.String())
}
