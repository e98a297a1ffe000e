package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/orbit/chat-app/internal/chat"
	"github.com/orbit/chat-app/internal/matching"
	"github.com/orbit/chat-app/internal/metrics"
	"github.com/orbit/chat-app/internal/protocol"
	"github.com/orbit/chat-app/internal/ratelimit"
	"github.com/orbit/chat-app/internal/report"
	"github.com/orbit/chat-app/internal/ws"
)

// app ties the transport to the matching engine and the relay. It is the
// engine's Notifier and the relay's Deliverer.
type app struct {
	server   *ws.Server
	rooms    *chat.Manager
	engine   *matching.Engine
	relay    *chat.Relay
	limiter  *ratelimit.Limiter // nil disables throttling
	reporter report.Reporter
}

// deps are the optional collaborators of the app.
type deps struct {
	limiter  *ratelimit.Limiter
	reporter report.Reporter   // defaults to report.LogReporter
	observer matching.Observer // nil disables lifecycle events
}

var _ matching.Notifier = (*app)(nil)

func newApp(cfg ws.ServerConfig, d deps) *app {
	a := &app{
		rooms:    chat.NewManager(),
		limiter:  d.limiter,
		reporter: d.reporter,
	}
	if a.reporter == nil {
		a.reporter = report.LogReporter{}
	}

	dispatcher := ws.NewMessageDispatcher()
	a.server = ws.NewServer(cfg, dispatcher.Dispatch)

	opts := []matching.Option{matching.WithLiveness(a.server.Alive)}
	if d.observer != nil {
		opts = append(opts, matching.WithObserver(d.observer))
	}
	a.engine = matching.NewEngine(a.rooms, a, opts...)
	a.relay = chat.NewRelay(a.rooms, chat.DelivererFunc(a.deliver))

	dispatcher.Register(protocol.TypeSearch, a.handleSearch)
	dispatcher.Register(protocol.TypeMessage, a.handleMessage)
	dispatcher.Register(protocol.TypeTyping, a.handleTyping)
	dispatcher.Register(protocol.TypeStopTyping, a.handleTyping)
	dispatcher.Register(protocol.TypeLeave, a.handleLeave)
	dispatcher.Register(protocol.TypeReport, a.handleReport)

	a.server.SetOnDisconnect(a.engine.Disconnect)
	a.server.SetStats(func() interface{} { return a.engine.Stats() })
	return a
}

// ---------------------------------------------------------------------------
// matching.Notifier
// ---------------------------------------------------------------------------

func (a *app) Waiting(connID string) {
	a.send(connID, protocol.TypeWaiting, protocol.WaitingMsg{})
}

func (a *app) Matched(connID string, room *chat.Room) {
	common := room.CommonInterests
	if common == nil {
		common = []string{}
	}
	a.send(connID, protocol.TypeMatched, protocol.MatchedMsg{RoomID: room.ID, CommonInterests: common})
}

func (a *app) PartnerLeft(connID string, room *chat.Room) {
	_ = a.deliver(connID, chat.Event{Type: chat.EventPartnerLeft, RoomID: room.ID})
}

// deliver maps relay events onto server messages.
func (a *app) deliver(connID string, ev chat.Event) error {
	switch ev.Type {
	case chat.EventMessage:
		return a.send(connID, protocol.TypeMessageReceived, protocol.MessageReceivedMsg{RoomID: ev.RoomID, Text: ev.Text, Ts: ev.Ts})
	case chat.EventTyping:
		return a.send(connID, protocol.TypePartnerTyping, protocol.PartnerTypingMsg{RoomID: ev.RoomID})
	case chat.EventStopTyping:
		return a.send(connID, protocol.TypePartnerStopTyping, protocol.PartnerTypingMsg{RoomID: ev.RoomID})
	case chat.EventPartnerLeft:
		return a.send(connID, protocol.TypePartnerLeft, protocol.PartnerLeftMsg{RoomID: ev.RoomID})
	}
	log.Printf("[notify] unknown event type=%q conn=%s", ev.Type, connID)
	return nil
}

func (a *app) send(connID, msgType string, payload interface{}) error {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("[notify] build %s: %v", msgType, err)
		return err
	}
	if err := a.server.SendMessage(connID, data); err != nil {
		log.Printf("[notify] send %s conn=%s: %v", msgType, connID, err)
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Client message handlers
// ---------------------------------------------------------------------------

func (a *app) handleSearch(c *ws.Connection, msgType string, msg interface{}) {
	m, ok := msg.(protocol.SearchMsg)
	if !ok {
		return
	}
	if !a.allow(c, msgType, ratelimit.RuleSearch) {
		return
	}

	prefs, err := matching.NewPreferences(m.Gender, m.LookingFor, m.Interests, m.Strategy)
	if err != nil {
		ws.SendError(c, protocol.CodeInvalidPreferences, err.Error())
		return
	}

	// An escalation that crossed a matched notification, or a cancelled
	// search, arrives late. It must not tear down the room just formed.
	if m.Escalate {
		_, err = a.engine.Escalate(c.ID, prefs)
	} else {
		_, err = a.engine.Search(c.ID, prefs)
	}
	switch {
	case err == nil, errors.Is(err, matching.ErrNotWaiting):
	default:
		ws.SendError(c, protocol.CodeInvalidPreferences, err.Error())
	}
}

func (a *app) handleMessage(c *ws.Connection, msgType string, msg interface{}) {
	m, ok := msg.(protocol.ChatMsg)
	if !ok {
		return
	}
	if !a.allow(c, msgType, ratelimit.RuleMessage) {
		metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	err := a.relay.Message(m.RoomID, c.ID, m.Text)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrInvalidMessage):
		ws.SendError(c, protocol.CodeInvalidMessage, err.Error())
	case errors.Is(err, chat.ErrNotInRoom):
		ws.SendError(c, protocol.CodeInvalidRoom, "not in this room")
	default:
		// The partner's disconnect tears the room down; partner_left follows.
		log.Printf("[relay] message from %s not delivered: %v", c.ID, err)
	}
}

func (a *app) handleTyping(c *ws.Connection, msgType string, msg interface{}) {
	m, ok := msg.(protocol.TypingMsg)
	if !ok {
		return
	}
	_ = a.relay.Typing(m.RoomID, c.ID, msgType == protocol.TypeTyping)
}

func (a *app) handleLeave(c *ws.Connection, _ string, msg interface{}) {
	m, ok := msg.(protocol.LeaveMsg)
	if !ok {
		return
	}
	a.engine.Leave(c.ID, m.RoomID)
}

func (a *app) handleReport(c *ws.Connection, msgType string, msg interface{}) {
	m, ok := msg.(protocol.ReportMsg)
	if !ok {
		return
	}
	if !a.allow(c, msgType, ratelimit.RuleReport) {
		return
	}

	room := a.rooms.Get(m.RoomID)
	if room == nil || !room.IsParticipant(c.ID) {
		ws.SendError(c, protocol.CodeInvalidRoom, "not in this room")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.reporter.File(ctx, report.Report{
		RoomID:     room.ID,
		ReporterID: c.ID,
		ReportedID: room.Partner(c.ID),
		Reason:     m.Reason,
	})
	if err != nil {
		log.Printf("[report] file report room=%s from=%s: %v", room.ID, c.ID, err)
	}
	metrics.ReportsTotal.Inc()
	_ = ws.Send(c, protocol.TypeReportReceived, protocol.ReportReceivedMsg{})
}

// allow applies rule to c and replies rate_limited, naming the rejected
// message type, when it is exceeded.
func (a *app) allow(c *ws.Connection, msgType string, rule ratelimit.Rule) bool {
	if a.limiter == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	d, _ := a.limiter.Allow(ctx, c.ID, rule)
	if d.Allowed {
		return true
	}
	retry := int((d.RetryAfter + time.Second - 1) / time.Second)
	_ = ws.Send(c, protocol.TypeRateLimited, protocol.RateLimitedMsg{RetryAfter: retry, Action: msgType})
	return false
}
