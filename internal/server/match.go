package server

import (
	"strings"
	"sync"
	"time"

	"github.com/broadside-game/broadside/internal/game"
)

// Phase is the match lifecycle stage.
type Phase int

const (
	PhasePlacement Phase = iota
	PhasePlay
	PhaseTerminated
)

// EndReason classifies how a match terminated.
type EndReason int

const (
	EndNone        EndReason = iota
	EndWin                   // last ship sunk
	EndQuit                  // voluntary quit
	EndTurnTimeout           // turn clock expired
	EndForfeit               // reconnect window expired
	EndAbandoned             // both players gone, or server shutdown
)

func (r EndReason) String() string {
	switch r {
	case EndWin:
		return "win"
	case EndQuit:
		return "quit"
	case EndTurnTimeout:
		return "timeout"
	case EndForfeit:
		return "forfeit"
	case EndAbandoned:
		return "abandoned"
	default:
		return "none"
	}
}

// Termination is a one-shot terminate signal carrying the outcome. The match
// holds a reference to its active supervisor's Termination; a supervisor
// whose token is no longer the match's current one has been superseded.
type Termination struct {
	once   sync.Once
	ch     chan struct{}
	mu     sync.Mutex
	reason EndReason
	winner int
}

// NewTermination returns an unfired termination token.
func NewTermination() *Termination {
	return &Termination{ch: make(chan struct{}), winner: -1}
}

// Terminate fires the signal. Only the first call wins.
func (t *Termination) Terminate(reason EndReason, winner int) {
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.winner = winner
		t.mu.Unlock()
		close(t.ch)
	})
}

// Done unblocks when the match has terminated.
func (t *Termination) Done() <-chan struct{} {
	return t.ch
}

// Terminated reports whether the signal has fired.
func (t *Termination) Terminated() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Result returns the reason and winning slot index (-1 for no winner).
func (t *Termination) Result() (EndReason, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason, t.winner
}

// QueuedPlayer is an authenticated idle connection handed out of the lobby.
type QueuedPlayer struct {
	Ep   *Endpoint
	Name string
}

type slot struct {
	name      string
	ep        *Endpoint
	board     *game.Board
	placed    int // ships placed, index into game.Catalog
	moves     int
	connected bool
	rejoined  chan struct{}
}

// Match is the shared state of one two-player game. The supervisor owns the
// state machine; the registry rebinds slots on reconnect. The lock is never
// held across blocking I/O.
type Match struct {
	mu    sync.Mutex
	key   string
	slots [2]*slot
	turn  int
	phase Phase

	reconnectPending bool
	reconnectSince   time.Time

	term *Termination
}

// MatchKey is the unordered pair of display names.
func MatchKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// NewMatch creates a match in the placement phase with a fresh termination
// token adopted as the active supervisor's.
func NewMatch(a, b QueuedPlayer) *Match {
	m := &Match{
		key:  MatchKey(a.Name, b.Name),
		term: NewTermination(),
	}
	for i, p := range []QueuedPlayer{a, b} {
		m.slots[i] = &slot{
			name:      p.Name,
			ep:        p.Ep,
			board:     game.NewBoard(),
			connected: true,
			rejoined:  make(chan struct{}, 1),
		}
	}
	return m
}

// Key returns the match key.
func (m *Match) Key() string { return m.key }

// Term returns the currently active supervisor's termination token.
func (m *Match) Term() *Termination {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.term
}

// Adopt installs t as the active supervisor's token, superseding any prior
// supervisor.
func (m *Match) Adopt(t *Termination) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.term = t
}

// IsActive reports whether t is still the match's active supervisor token.
func (m *Match) IsActive(t *Termination) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.term == t
}

// PlayerName returns the display name in slot i.
func (m *Match) PlayerName(i int) string {
	return m.slots[i].name
}

// SlotOf returns the slot index for a display name, or -1.
func (m *Match) SlotOf(name string) int {
	for i, s := range m.slots {
		if strings.EqualFold(s.name, name) {
			return i
		}
	}
	return -1
}

// Endpoint returns the endpoint currently bound to slot i.
func (m *Match) Endpoint(i int) *Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[i].ep
}

// Board returns slot i's board. Boards are mutated only by the supervisor.
func (m *Match) Board(i int) *game.Board {
	return m.slots[i].board
}

// Phase returns the current phase.
func (m *Match) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// SetPhase advances the lifecycle stage.
func (m *Match) SetPhase(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = p
}

// Turn returns the active slot index. Valid only in play.
func (m *Match) Turn() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turn
}

// SwitchTurn hands the turn to the other player.
func (m *Match) SwitchTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turn = 1 - m.turn
}

// Placed returns how many catalog ships slot i has placed.
func (m *Match) Placed(i int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[i].placed
}

// SetPlaced persists placement progress so a reconnecting player resumes at
// the next unplaced ship.
func (m *Match) SetPlaced(i, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[i].placed = n
}

// BothPlaced reports whether both fleets are fully placed.
func (m *Match) BothPlaced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[0].placed == len(game.Catalog) && m.slots[1].placed == len(game.Catalog)
}

// Moves returns slot i's fire count.
func (m *Match) Moves(i int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[i].moves
}

// IncMoves counts one resolved shot for slot i.
func (m *Match) IncMoves(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[i].moves++
}

// Connected reports whether slot i currently has a live endpoint.
func (m *Match) Connected(i int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[i].connected
}

// MarkDisconnected flags slot i as gone and opens the reconnect window.
// The window timestamp is kept from the first disconnect while the pending
// flag stays raised.
func (m *Match) MarkDisconnected(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[i].connected = false
	if !m.reconnectPending {
		m.reconnectPending = true
		m.reconnectSince = time.Now()
	}
}

// ReconnectPending reports whether a reconnect window is open.
func (m *Match) ReconnectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectPending
}

// WindowExpired reports whether the reconnect window has lapsed.
func (m *Match) WindowExpired(window time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectPending && time.Since(m.reconnectSince) >= window
}

// TryRebind atomically binds ep to the disconnected slot named name and
// signals the waiting supervisor. It fails if the match is over, the name is
// not a player here, or that slot is still connected.
func (m *Match) TryRebind(name string, ep *Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == PhaseTerminated || !m.reconnectPending {
		return false
	}
	for i, s := range m.slots {
		if !strings.EqualFold(s.name, name) || s.connected {
			continue
		}
		s.ep = ep
		s.connected = true
		if m.slots[1-i].connected {
			m.reconnectPending = false
		}
		select {
		case s.rejoined <- struct{}{}:
		default:
		}
		return true
	}
	return false
}

// Rejoined exposes slot i's rebind signal.
func (m *Match) Rejoined(i int) <-chan struct{} {
	return m.slots[i].rejoined
}
