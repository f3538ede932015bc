package server

import (
	"log/slog"
	"sync"
)

type session struct {
	ep    *Endpoint
	match *Match
}

// Registry is the process-wide map from display name to live session and
// from match key to live match. It decides whether a new connection is a
// fresh arrival or a reconnect, and it is the source of truth for chat sink
// membership. One lock covers both maps; no I/O happens under it.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	matches  map[string]*Match
	sink     *Broadcast
}

// NewRegistry creates an empty registry feeding the given chat sink.
func NewRegistry(sink *Broadcast) *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		matches:  make(map[string]*Match),
		sink:     sink,
	}
}

// Register resolves a USERNAME claim. A fresh name binds a new session and
// returns (nil, nil). A name owned by a match with an open reconnect window
// and a disconnected slot rebinds that slot atomically and returns the
// match. Anything else is rejected with ErrNameInUse: a live session is
// never displaced.
func (r *Registry) Register(name string, ep *Endpoint) (*Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[name]
	if !ok {
		r.sessions[name] = &session{ep: ep}
		r.sink.Add(ep)
		return nil, nil
	}

	if s.match != nil && s.match.TryRebind(name, ep) {
		s.ep = ep
		r.sink.Add(ep)
		return s.match, nil
	}

	return nil, ErrNameInUse
}

// Deregister detaches a closed endpoint. The name mapping survives while a
// live match references it, so the player can reconnect; otherwise the
// session is dropped.
func (r *Registry) Deregister(ep *Endpoint) {
	r.sink.Remove(ep)

	name := ep.Name()
	if name == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[name]
	if !ok || s.ep != ep {
		return
	}
	if s.match == nil {
		delete(r.sessions, name)
	}
}

// EnterMatch records m as the live match for both of its players.
func (r *Registry) EnterMatch(m *Match) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.matches[m.Key()] = m
	for i := range 2 {
		name := m.PlayerName(i)
		s, ok := r.sessions[name]
		if !ok {
			s = &session{ep: m.Endpoint(i)}
			r.sessions[name] = s
		}
		s.match = m
	}
}

// FinishMatch removes a terminated match. Sessions whose endpoint is already
// gone are dropped with it.
func (r *Registry) FinishMatch(m *Match) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.matches, m.Key())
	for i := range 2 {
		name := m.PlayerName(i)
		s, ok := r.sessions[name]
		if !ok || s.match != m {
			continue
		}
		s.match = nil
		if s.ep == nil || s.ep.Closed() {
			delete(r.sessions, name)
		}
	}
	slog.Debug("match removed from registry", "match", m.Key())
}

// FindMatch returns the live match a display name is part of, or nil.
func (r *Registry) FindMatch(name string) *Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[name]; ok {
		return s.match
	}
	return nil
}

// Sessions returns the number of registered names.
func (r *Registry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Matches returns the number of live matches.
func (r *Registry) Matches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}
