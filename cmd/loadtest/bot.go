package main

import (
	"context"
	"fmt"
	"time"

	"github.com/orbit/chat-app/internal/client"
	"github.com/orbit/chat-app/internal/protocol"
)

type frame struct {
	typ string
	msg interface{}
	at  time.Time
}

// bot is one simulated user. Every server message is queued with its arrival
// time so latencies can be measured after the fact.
type bot struct {
	conn           *client.Conn
	id             string
	frames         chan frame
	closed         chan struct{}
	connectLatency time.Duration
}

// dialBot connects and waits for session_created.
func dialBot(ctx context.Context, url string) (*bot, error) {
	start := time.Now()
	conn, err := client.Dial(ctx, url)
	if err != nil {
		return nil, err
	}

	b := &bot{conn: conn, frames: make(chan frame, 256), closed: make(chan struct{})}
	go func() {
		defer close(b.closed)
		_ = conn.Run(func(typ string, msg interface{}) {
			select {
			case b.frames <- frame{typ: typ, msg: msg, at: time.Now()}:
			default:
			}
		})
	}()

	f, err := b.await(ctx, protocol.TypeSessionCreated)
	if err != nil {
		conn.Close()
		return nil, err
	}
	b.id = f.msg.(protocol.SessionCreatedMsg).SessionID
	b.connectLatency = f.at.Sub(start)
	return b, nil
}

// await discards messages until one of type typ arrives.
func (b *bot) await(ctx context.Context, typ string) (frame, error) {
	for {
		select {
		case f := <-b.frames:
			if f.typ == typ {
				return f, nil
			}
			if e, ok := f.msg.(protocol.ErrorMsg); ok {
				return frame{}, fmt.Errorf("server error %s: %s", e.Code, e.Message)
			}
		case <-b.closed:
			return frame{}, fmt.Errorf("connection closed waiting for %s", typ)
		case <-ctx.Done():
			return frame{}, fmt.Errorf("waiting for %s: %w", typ, ctx.Err())
		}
	}
}

func (b *bot) search(gender, lookingFor, interests string) error {
	return b.conn.Send(protocol.TypeSearch, protocol.SearchMsg{
		Gender:     gender,
		LookingFor: lookingFor,
		Interests:  interests,
		Strategy:   "strict",
	})
}

func (b *bot) Close() {
	b.conn.Close()
}
