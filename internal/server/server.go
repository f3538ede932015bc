package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/broadside-game/broadside/internal/config"
	"github.com/broadside-game/broadside/internal/crypto"
)

// Option is a functional option for Server configuration.
type Option func(*Server)

// WithRecorder sets an optional match-history recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}

// WithTimings overrides the contract clocks (useful for tests).
func WithTimings(t Timings) Option {
	return func(s *Server) {
		s.timings = t
	}
}

// Server is the front door: it accepts client connections, authenticates
// them by display name, and dispatches into the lobby, a rebound match, or
// a single-player supervisor.
type Server struct {
	cfg      config.Server
	timings  Timings
	cipher   *crypto.PayloadCipher
	sink     *Broadcast
	registry *Registry
	lobby    *Lobby
	recorder Recorder
	limiter  *rate.Limiter

	mu       sync.Mutex
	listener net.Listener
	runCtx   context.Context
}

// NewServer wires the process-wide services: broadcast sink, session
// registry, and lobby.
func NewServer(cfg config.Server, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		timings: timingsFromConfig(cfg),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if cfg.Encryption.Enabled {
		cipher, err := crypto.NewPayloadCipherHex(cfg.Encryption.Key)
		if err != nil {
			return nil, fmt.Errorf("configuring payload encryption: %w", err)
		}
		s.cipher = cipher
	}
	if cfg.FloodProtection && cfg.AcceptRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), max(cfg.AcceptBurst, 1))
	}

	s.sink = NewBroadcast()
	s.registry = NewRegistry(s.sink)
	s.lobby = NewLobby(s.timings, s.startMatch)
	return s, nil
}

// Registry exposes the session registry (for tests and integrations).
func (s *Server) Registry() *Registry {
	return s.registry
}

// Lobby exposes the lobby queue.
func (s *Server) Lobby() *Lobby {
	return s.lobby
}

// Addr returns the listen address, or nil before Run.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close closes the listener and stops accepting.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from a ready listener. Split out of Run so tests
// can pass an arbitrary listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.runCtx = ctx
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		if err := s.lobby.Run(ctx); err != nil {
			slog.Error("lobby loop failed", "err", err)
		}
	})
	wg.Go(func() {
		slog.Info("battleship server started", "address", ln.Addr())
		s.acceptLoop(ctx, &wg, ln)
	})

	wg.Wait()
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, wg *sync.WaitGroup, ln net.Listener) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Error("failed to accept new connection", "error", err)
				continue
			}
			if s.limiter != nil && !s.limiter.Allow() {
				slog.Warn("connection rejected by flood protection",
					"remote", conn.RemoteAddr())
				_ = conn.Close()
				continue
			}
			wg.Go(func() {
				s.handleConnection(ctx, conn)
			})
		}
	}
}

// handleConnection authenticates one socket and hands it off. For
// multiplayer the endpoint outlives this handler: the lobby keeper and then
// a match supervisor become its GAME consumers.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	ep := NewEndpoint(conn, s.cipher, s.sink)
	ep.SetOnClose(func(e *Endpoint) {
		s.registry.Deregister(e)
		s.lobby.Remove(e)
	})
	go func() {
		select {
		case <-ctx.Done():
			ep.Close("server shutdown")
		case <-ep.Done():
		}
	}()

	slog.Info("new connection", "remote", ep.Remote())

	authCtx, cancel := context.WithTimeout(ctx, s.timings.Auth)
	defer cancel()
	msg, err := ep.RecvGame(authCtx)
	if err != nil {
		ep.Close("no username")
		return
	}

	name, solo, err := parseUsername(msg)
	if err != nil {
		_ = ep.SendGame("ERROR " + err.Error())
		ep.Close("bad username")
		return
	}
	ep.SetName(name)

	m, err := s.registry.Register(name, ep)
	if err != nil {
		_ = ep.SendGame("ERROR name already in use")
		ep.Close("name in use")
		return
	}
	if m != nil {
		// Reconnect: the slot is already rebound and the supervisor
		// signalled; it resumes at the exact phase it was suspended in.
		slog.Info("player reconnected", "player", name, "match", m.Key())
		return
	}

	slog.Info("player authenticated", "player", name, "solo", solo)
	_ = ep.SendGame("WELCOME! Waiting for game to start...")

	if solo {
		RunSinglePlayer(ctx, ep)
		return
	}

	_ = ep.SendGame("Waiting for another player to join...")
	s.lobby.ArriveFresh(ep, name)
}

func (s *Server) startMatch(a, b QueuedPlayer) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	StartMatch(ctx, MatchDeps{
		Registry: s.registry,
		Lobby:    s.lobby,
		Sink:     s.sink,
		Recorder: s.recorder,
		Timings:  s.timings,
	}, a, b)
}
