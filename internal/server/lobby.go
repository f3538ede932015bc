package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type lobbyEntry struct {
	ep         *Endpoint
	name       string
	stopKeeper context.CancelFunc
	keeperDone chan struct{}
}

// Lobby is the ordered queue of authenticated idle connections. A pairing
// loop announces and starts matches from the head; a per-entry keeper
// consumes GAME traffic (answering quit) while the player waits. CHAT is
// demultiplexed below the lobby and never passes through here.
type Lobby struct {
	mu    sync.Mutex
	queue []*lobbyEntry

	timings    Timings
	startMatch func(a, b QueuedPlayer)
}

// NewLobby creates a lobby that hands paired players to startMatch on a new
// goroutine.
func NewLobby(t Timings, startMatch func(a, b QueuedPlayer)) *Lobby {
	return &Lobby{timings: t, startMatch: startMatch}
}

// ArriveFresh appends a player to the queue tail.
func (l *Lobby) ArriveFresh(ep *Endpoint, name string) {
	l.enqueue(ep, name, false)
}

// ArriveAsWinner inserts the prior match's winner at the queue head.
func (l *Lobby) ArriveAsWinner(ep *Endpoint, name string) {
	l.enqueue(ep, name, true)
}

func (l *Lobby) enqueue(ep *Endpoint, name string, atHead bool) {
	ctx, cancel := context.WithCancel(context.Background())
	e := &lobbyEntry{
		ep:         ep,
		name:       name,
		stopKeeper: cancel,
		keeperDone: make(chan struct{}),
	}

	l.mu.Lock()
	if atHead {
		l.queue = append([]*lobbyEntry{e}, l.queue...)
	} else {
		l.queue = append(l.queue, e)
	}
	n := len(l.queue)
	l.mu.Unlock()

	go l.keeper(ctx, e)
	slog.Info("player queued", "player", name, "position", n, "head", atHead)
}

// Remove drops an endpoint from the queue, wherever it is.
func (l *Lobby) Remove(ep *Endpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.queue {
		if e.ep == ep {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}
}

// Len returns the number of queued players.
func (l *Lobby) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Names returns the queued display names in order.
func (l *Lobby) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, len(l.queue))
	for i, e := range l.queue {
		names[i] = e.name
	}
	return names
}

// keeper owns a queued endpoint's GAME stream until the player is paired.
// It answers quit and rejects game commands sent out of turn.
func (l *Lobby) keeper(ctx context.Context, e *lobbyEntry) {
	defer close(e.keeperDone)

	for {
		msg, err := e.ep.RecvGame(ctx)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return // paired; the supervisor takes over
			}
			l.Remove(e.ep)
			return
		}

		switch strings.ToLower(strings.TrimSpace(msg)) {
		case "quit":
			_ = e.ep.SendGame("BYE")
			l.Remove(e.ep)
			e.ep.Close("quit while queued")
			return
		default:
			_ = e.ep.SendGame("ERROR no game in progress")
		}
	}
}

// Run drives the pairing loop until ctx is done.
func (l *Lobby) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.timings.PairingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.pairOnce(ctx)
		}
	}
}

// pairOnce runs one pairing tick: prune, announce the head two with the
// configured lead, re-check, pop, and hand off to a match supervisor.
func (l *Lobby) pairOnce(ctx context.Context) {
	l.mu.Lock()
	l.prune()
	if len(l.queue) < 2 {
		l.mu.Unlock()
		return
	}
	a, b := l.queue[0], l.queue[1]
	waiting := append([]*lobbyEntry(nil), l.queue...)
	l.mu.Unlock()

	notice := fmt.Sprintf("[LOBBY] next match: %s vs %s starting in %d s",
		a.name, b.name, int(l.timings.AnnounceLead.Seconds()))
	for i, e := range waiting {
		_ = e.ep.SendGame(notice)
		_ = e.ep.SendGame(fmt.Sprintf("[LOBBY] You are position %d in the queue.", i+1))
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(l.timings.AnnounceLead):
	}

	l.mu.Lock()
	if len(l.queue) < 2 || l.queue[0] != a || l.queue[1] != b ||
		a.ep.Closed() || b.ep.Closed() {
		l.mu.Unlock()
		return
	}
	l.queue = l.queue[2:]
	l.mu.Unlock()

	// Stop both keepers before the supervisor becomes the GAME consumer.
	a.stopKeeper()
	<-a.keeperDone
	b.stopKeeper()
	<-b.keeperDone

	slog.Info("pairing players", "a", a.name, "b", b.name)
	go l.startMatch(
		QueuedPlayer{Ep: a.ep, Name: a.name},
		QueuedPlayer{Ep: b.ep, Name: b.name},
	)
}

// prune drops closed endpoints. Caller holds the lock.
func (l *Lobby) prune() {
	kept := l.queue[:0]
	for _, e := range l.queue {
		if !e.ep.Closed() {
			kept = append(kept, e)
		}
	}
	l.queue = kept
}
