package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/orbit/chat-app/internal/client"
)

// renderer prints machine views as a scrolling terminal log. Only what
// changed since the previous view is printed.
type renderer struct {
	mu      sync.Mutex
	w       io.Writer
	status  string
	room    string
	printed int
	typing  bool
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) render(v client.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.State == client.StateMatched && v.RoomID != r.room {
		r.room = v.RoomID
		r.printed = 0
		if len(v.CommonInterests) > 0 {
			fmt.Fprintf(r.w, "-- You both like: %s\n", strings.Join(v.CommonInterests, ", "))
		}
	}
	if len(v.Transcript) < r.printed {
		r.printed = 0
	}

	// Lines from the system repeat the status, so they are printed once here.
	for _, line := range v.Transcript[r.printed:] {
		if line.From == "system" {
			fmt.Fprintf(r.w, "-- %s\n", line.Text)
			r.status = line.Text
			continue
		}
		fmt.Fprintf(r.w, "[%s] %s: %s\n", line.At.Format("15:04"), line.From, line.Text)
	}
	r.printed = len(v.Transcript)

	if v.Status != r.status {
		r.status = v.Status
		if v.Status != "" {
			fmt.Fprintf(r.w, "-- %s\n", v.Status)
		}
	}

	if v.PartnerTyping != r.typing {
		r.typing = v.PartnerTyping
		if v.PartnerTyping {
			fmt.Fprintln(r.w, "   stranger is typing...")
		}
	}
	if v.State == client.StateIdle {
		r.room = ""
	}
}
