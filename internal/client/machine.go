// Package client implements the chat client: a session state machine that
// drives searching, chatting and strategy escalation, and a WebSocket
// connection to the server that feeds it.
package client

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/orbit/chat-app/internal/chat"
	"github.com/orbit/chat-app/internal/matching"
	"github.com/orbit/chat-app/internal/protocol"
)

// State is the client session state.
type State string

const (
	StateIdle      State = "idle"
	StateSearching State = "searching"
	StateMatched   State = "matched"
	StateEnded     State = "ended"
)

// User-visible status lines.
const (
	StatusSearching   = "Looking for someone to talk to..."
	StatusWaiting     = "Waiting for a partner..."
	StatusExpanding   = "Expanding search..."
	StatusMatched     = "You're now chatting with a stranger."
	StatusPartnerLeft = "Stranger has disconnected."
	StatusYouLeft     = "You have disconnected."
)

const defaultTypingIdle = time.Second

var (
	// ErrInvalid is returned by Submit when the form cannot be searched with.
	ErrInvalid = errors.New("client: invalid search")
	// ErrWrongState is returned when an action does not apply to the current
	// state.
	ErrWrongState = errors.New("client: action not allowed in current state")
)

// Sender is the outbound half of the server connection.
type Sender interface {
	Send(msgType string, payload interface{}) error
}

// Timer is a cancellable single-shot schedule.
type Timer interface {
	Stop() bool
}

// Form holds what the user entered on the home screen.
type Form struct {
	Gender     string
	LookingFor string
	Interests  string        // comma separated
	Wait       time.Duration // escalate to "any" after this long; 0 waits forever
}

// Line is one transcript entry.
type Line struct {
	From string // "you", "stranger" or "system"
	Text string
	At   time.Time
}

// View is a copy of the machine state for rendering.
type View struct {
	State           State
	Status          string
	RoomID          string
	CommonInterests []string
	PartnerTyping   bool
	Escalated       bool
	Transcript      []Line
}

// Options configures a Machine.
type Options struct {
	// TypingIdle is how long after the last keystroke stop_typing is sent.
	TypingIdle time.Duration
	// AfterFunc schedules f after d. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
	// OnChange is called after every state change, outside the lock.
	OnChange func(View)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Machine is the client session state machine. All methods are safe for
// concurrent use; server events and user actions may arrive from different
// goroutines.
type Machine struct {
	mu   sync.Mutex
	out  Sender
	opts Options

	state  State
	status string
	form   Form
	prefs  matching.Preferences

	// searchGen identifies the current search cycle. Bumping it invalidates
	// an escalation timer that has already fired but not yet run.
	searchGen uint64
	escalated bool
	escTimer  Timer

	typingGen   uint64
	typing      bool
	typingTimer Timer

	roomID        string
	common        []string
	partnerTyping bool
	transcript    []Line
}

// NewMachine creates an idle machine that talks to the server through out.
func NewMachine(out Sender, opts Options) *Machine {
	if opts.TypingIdle <= 0 {
		opts.TypingIdle = defaultTypingIdle
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{out: out, opts: opts, state: StateIdle}
}

// Submit validates the form and starts a search. Missing or unknown values
// are rejected locally and nothing is sent.
func (m *Machine) Submit(f Form) error {
	if f.Gender == "" || f.LookingFor == "" {
		return fmt.Errorf("%w: select your gender and who you want to talk to", ErrInvalid)
	}
	prefs, err := matching.NewPreferences(f.Gender, f.LookingFor, f.Interests, string(matching.StrategyStrict))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	m.mu.Lock()
	if m.state == StateMatched {
		m.mu.Unlock()
		return ErrWrongState
	}
	m.form = f
	m.prefs = prefs
	m.startSearchLocked()
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	return nil
}

// Next skips to a new partner with the same form. From a chat it leaves the
// room first.
func (m *Machine) Next() error {
	m.mu.Lock()
	switch m.state {
	case StateMatched:
		m.sendLocked(protocol.TypeLeave, protocol.LeaveMsg{RoomID: m.roomID})
		m.endLocked(StatusYouLeft)
	case StateEnded:
	default:
		m.mu.Unlock()
		return ErrWrongState
	}
	m.startSearchLocked()
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	return nil
}

// Leave ends the current chat, or abandons the current search.
func (m *Machine) Leave() error {
	m.mu.Lock()
	switch m.state {
	case StateMatched:
		m.sendLocked(protocol.TypeLeave, protocol.LeaveMsg{RoomID: m.roomID})
		m.endLocked(StatusYouLeft)
	case StateSearching:
		m.sendLocked(protocol.TypeLeave, protocol.LeaveMsg{})
		m.cancelSearchLocked()
		m.state = StateEnded
		m.status = StatusYouLeft
	default:
		m.mu.Unlock()
		return ErrWrongState
	}
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	return nil
}

// Home returns to the idle state from anywhere, tearing down any search or
// chat and discarding the transcript. The form is kept for prefilling.
func (m *Machine) Home() {
	m.mu.Lock()
	switch m.state {
	case StateMatched:
		m.sendLocked(protocol.TypeLeave, protocol.LeaveMsg{RoomID: m.roomID})
		m.endLocked("")
	case StateSearching:
		m.sendLocked(protocol.TypeLeave, protocol.LeaveMsg{})
		m.cancelSearchLocked()
	}
	m.state = StateIdle
	m.status = ""
	m.common = nil
	m.transcript = nil
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
}

// Input records a keystroke. The first keystroke of a burst sends typing;
// stop_typing follows once the user has been idle for TypingIdle.
func (m *Machine) Input() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateMatched {
		return
	}
	if !m.typing {
		m.typing = true
		m.sendLocked(protocol.TypeTyping, protocol.TypingMsg{RoomID: m.roomID})
	}

	m.typingGen++
	gen := m.typingGen
	if m.typingTimer != nil {
		m.typingTimer.Stop()
	}
	m.typingTimer = m.opts.AfterFunc(m.opts.TypingIdle, func() { m.typingIdle(gen) })
}

// Send sends a chat message and echoes it into the local transcript.
func (m *Machine) Send(text string) error {
	if err := chat.ValidateMessage(text); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state != StateMatched {
		m.mu.Unlock()
		return ErrWrongState
	}
	if err := m.sendLocked(protocol.TypeMessage, protocol.ChatMsg{RoomID: m.roomID, Text: text}); err != nil {
		m.mu.Unlock()
		return err
	}
	m.appendLocked("you", text)
	m.stopTypingLocked(true)
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
	return nil
}

// Report flags the current partner.
func (m *Machine) Report(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateMatched {
		return ErrWrongState
	}
	return m.sendLocked(protocol.TypeReport, protocol.ReportMsg{RoomID: m.roomID, Reason: reason})
}

// Handle applies a server message, as returned by
// protocol.ParseServerMessage. Messages that do not apply to the current
// state are ignored.
func (m *Machine) Handle(msgType string, msg interface{}) {
	m.mu.Lock()
	changed := true
	switch v := msg.(type) {
	case protocol.WaitingMsg:
		if m.state == StateSearching && !m.escalated {
			m.status = StatusWaiting
		} else {
			changed = false
		}
	case protocol.MatchedMsg:
		changed = m.matchedLocked(v.RoomID, v.CommonInterests)
	case protocol.MessageReceivedMsg:
		if m.state == StateMatched && v.RoomID == m.roomID {
			m.partnerTyping = false
			m.appendLocked("stranger", v.Text)
		} else {
			changed = false
		}
	case protocol.PartnerTypingMsg:
		if m.state == StateMatched && v.RoomID == m.roomID {
			m.partnerTyping = msgType == protocol.TypePartnerTyping
		} else {
			changed = false
		}
	case protocol.PartnerLeftMsg:
		if m.state == StateMatched && (v.RoomID == "" || v.RoomID == m.roomID) {
			m.endLocked(StatusPartnerLeft)
			m.appendLocked("system", StatusPartnerLeft)
		} else {
			changed = false
		}
	case protocol.RateLimitedMsg:
		m.status = fmt.Sprintf("Slow down. Try again in %ds.", v.RetryAfter)
		if v.Action == protocol.TypeSearch && m.state == StateSearching {
			// Withdraw any entry the server still holds for this cycle.
			m.sendLocked(protocol.TypeLeave, protocol.LeaveMsg{})
			m.cancelSearchLocked()
			m.state = StateEnded
		}
	case protocol.ErrorMsg:
		log.Printf("[client] server error %s: %s", v.Code, v.Message)
		m.status = v.Message
	default:
		changed = false
	}
	view := m.viewLocked()
	m.mu.Unlock()

	if changed {
		m.emit(view)
	}
}

// View returns a copy of the current state.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// matchedLocked enters roomID. The server's latest matched wins: a matched
// for another room while already chatting replaces the current one, whose
// typing burst is dropped without a stop_typing.
func (m *Machine) matchedLocked(roomID string, common []string) bool {
	switch m.state {
	case StateSearching:
	case StateMatched:
		if roomID == m.roomID {
			return false
		}
		log.Printf("[client] moved from room %s to %s", m.roomID, roomID)
		m.stopTypingLocked(false)
	default:
		return false
	}
	m.cancelSearchLocked()
	m.state = StateMatched
	m.roomID = roomID
	m.common = append([]string(nil), common...)
	m.partnerTyping = false
	m.transcript = nil
	m.status = StatusMatched
	m.appendLocked("system", StatusMatched)
	return true
}

// startSearchLocked begins a fresh search cycle: strict strategy, a new
// escalation deadline and escalation not yet used.
func (m *Machine) startSearchLocked() {
	m.cancelSearchLocked()
	m.state = StateSearching
	m.status = StatusSearching
	m.escalated = false
	m.roomID = ""
	m.common = nil

	m.sendSearchLocked(matching.StrategyStrict, false)

	if m.form.Wait > 0 {
		gen := m.searchGen
		m.escTimer = m.opts.AfterFunc(m.form.Wait, func() { m.escalate(gen) })
	}
}

func (m *Machine) cancelSearchLocked() {
	m.searchGen++
	if m.escTimer != nil {
		m.escTimer.Stop()
		m.escTimer = nil
	}
}

func (m *Machine) escalate(gen uint64) {
	m.mu.Lock()
	if gen != m.searchGen || m.state != StateSearching || m.escalated {
		m.mu.Unlock()
		return
	}
	m.escalated = true
	m.escTimer = nil
	m.status = StatusExpanding
	m.sendSearchLocked(matching.StrategyAny, true)
	v := m.viewLocked()
	m.mu.Unlock()

	m.emit(v)
}

func (m *Machine) sendSearchLocked(strategy matching.Strategy, escalate bool) {
	m.sendLocked(protocol.TypeSearch, protocol.SearchMsg{
		Gender:     string(m.prefs.Self),
		LookingFor: string(m.prefs.Desired),
		Interests:  m.form.Interests,
		Strategy:   string(strategy),
		Escalate:   escalate,
	})
}

func (m *Machine) typingIdle(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.typingGen || m.state != StateMatched {
		return
	}
	m.stopTypingLocked(true)
}

// stopTypingLocked cancels the suppression timer. When notify is set and a
// typing burst is open, stop_typing is sent to the current room.
func (m *Machine) stopTypingLocked(notify bool) {
	m.typingGen++
	if m.typingTimer != nil {
		m.typingTimer.Stop()
		m.typingTimer = nil
	}
	if m.typing && notify {
		m.sendLocked(protocol.TypeStopTyping, protocol.TypingMsg{RoomID: m.roomID})
	}
	m.typing = false
}

// endLocked moves a matched session to ended. The room is gone, so no
// stop_typing is sent for it.
func (m *Machine) endLocked(status string) {
	m.stopTypingLocked(false)
	m.state = StateEnded
	m.status = status
	m.roomID = ""
	m.partnerTyping = false
}

func (m *Machine) appendLocked(from, text string) {
	m.transcript = append(m.transcript, Line{From: from, Text: text, At: m.opts.Now()})
}

func (m *Machine) sendLocked(msgType string, payload interface{}) error {
	if err := m.out.Send(msgType, payload); err != nil {
		log.Printf("[client] send %s: %v", msgType, err)
		return fmt.Errorf("client: send %s: %w", msgType, err)
	}
	return nil
}

func (m *Machine) viewLocked() View {
	return View{
		State:           m.state,
		Status:          m.status,
		RoomID:          m.roomID,
		CommonInterests: append([]string(nil), m.common...),
		PartnerTyping:   m.partnerTyping,
		Escalated:       m.escalated,
		Transcript:      append([]Line(nil), m.transcript...),
	}
}

func (m *Machine) emit(v View) {
	if m.opts.OnChange != nil {
		m.opts.OnChange(v)
	}
}
