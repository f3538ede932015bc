package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/broadside-game/broadside/internal/game"
)

var (
	errTerminated = errors.New("match terminated")
	errSuperseded = errors.New("supervisor superseded")
)

// MatchDeps are the collaborators a match supervisor drives.
type MatchDeps struct {
	Registry *Registry
	Lobby    *Lobby
	Sink     *Broadcast
	Recorder Recorder // optional, may be nil
	Timings  Timings
}

// Supervisor owns one match's state machine: placement, play, the
// disconnect/reconnect window, termination and requeueing.
type Supervisor struct {
	deps    MatchDeps
	m       *Match
	term    *Termination
	started time.Time
}

// StartMatch creates the match for two paired players, registers it, and
// runs the supervisor until termination. Call on its own goroutine.
func StartMatch(ctx context.Context, deps MatchDeps, a, b QueuedPlayer) {
	m := NewMatch(a, b)
	deps.Registry.EnterMatch(m)
	s := &Supervisor{deps: deps, m: m, term: m.Term(), started: time.Now()}
	slog.Info("match started", "match", m.Key())
	s.run(ctx)
}

// ResumeMatch attaches a fresh supervisor to an existing match, superseding
// whichever supervisor held it before. The prior supervisor observes that
// the match's termination token is no longer its own and exits without
// touching shared state.
func ResumeMatch(ctx context.Context, deps MatchDeps, m *Match) {
	t := NewTermination()
	m.Adopt(t)
	s := &Supervisor{deps: deps, m: m, term: t, started: time.Now()}
	slog.Info("match resumed by new supervisor", "match", m.Key())
	s.run(ctx)
}

func (s *Supervisor) active() bool {
	return s.m.IsActive(s.term)
}

func (s *Supervisor) run(ctx context.Context) {
	defer s.finish()

	if s.m.Phase() == PhasePlacement {
		if err := s.placementPhase(ctx); err != nil {
			return
		}
		if !s.active() || s.term.Terminated() {
			return
		}
		s.sendBoth("ALL_SHIPS_PLACED")
		s.m.SetPhase(PhasePlay)
	}
	s.playPhase(ctx)
}

// placementPhase prompts both players concurrently; placement is
// independent per player.
func (s *Supervisor) placementPhase(ctx context.Context) error {
	for i := range 2 {
		_ = s.send(i, fmt.Sprintf("WELCOME PLAYER %d", i+1))
	}
	s.sendBoth("PLACE_SHIPS")

	g, gctx := errgroup.WithContext(ctx)
	for i := range 2 {
		g.Go(func() error {
			return s.placeShips(gctx, i)
		})
	}
	return g.Wait()
}

// placeShips walks slot i through the catalog. Progress persists in the
// match state after every ship, so a reconnecting player resumes at the
// next unplaced one.
func (s *Supervisor) placeShips(ctx context.Context, i int) error {
	o := 1 - i
	for {
		idx := s.m.Placed(i)
		if idx >= len(game.Catalog) {
			break
		}
		spec := game.Catalog[idx]

		if err := s.send(i, fmt.Sprintf("Placing your %s (size %d).", spec.Name, spec.Size)); err != nil {
			if err := s.awaitRejoin(ctx, i); err != nil {
				return err
			}
			_ = s.send(i, "PLACE_SHIPS")
			continue
		}

		msg, err := s.recv(ctx, i, 0)
		switch {
		case err == nil:
		case errors.Is(err, ErrPeerGone):
			if err := s.awaitRejoin(ctx, i); err != nil {
				return err
			}
			_ = s.send(i, "PLACE_SHIPS")
			continue
		default:
			return err
		}

		if isQuit(msg) {
			_ = s.send(i, "BYE")
			_ = s.send(o, "OPPONENT_QUIT")
			s.term.Terminate(EndQuit, o)
			return errTerminated
		}

		cmd, err := parsePlace(msg)
		if err != nil {
			_ = s.send(i, "ERROR "+err.Error())
			continue
		}
		if !strings.EqualFold(cmd.ship, spec.Name) {
			_ = s.send(i, "ERROR ship name mismatch: expected "+spec.Name)
			continue
		}
		if err := s.m.Board(i).Place(spec.Name, cmd.coord, cmd.o, spec.Size); err != nil {
			_ = s.send(i, "ERROR cannot place ship at that location")
			continue
		}

		_ = s.send(i, "PLACED")
		s.m.SetPlaced(i, idx+1)
	}

	if !s.m.BothPlaced() {
		_ = s.send(i, "WAITING_FOR_OPPONENT_TO_FINISH_PLACING_SHIPS")
	}
	return nil
}

func (s *Supervisor) playPhase(ctx context.Context) {
	for {
		if !s.active() || s.term.Terminated() || ctx.Err() != nil {
			return
		}
		i := s.m.Turn()
		o := 1 - i

		if who, err := s.sendTurnPrompts(i, o); err != nil {
			if s.awaitRejoin(ctx, who) != nil {
				return
			}
			continue
		}

		msg, err := s.recv(ctx, i, s.deps.Timings.Turn)
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			_ = s.send(i, "TIMEOUT. You forfeited the game.")
			_ = s.send(o, "OPPONENT_TIMEOUT. You win!")
			s.term.Terminate(EndTurnTimeout, o)
			return
		case errors.Is(err, ErrPeerGone):
			if s.awaitRejoin(ctx, i) != nil {
				return
			}
			continue
		default:
			return
		}

		if isQuit(msg) {
			_ = s.send(i, "BYE")
			_ = s.send(o, "OPPONENT_QUIT")
			s.term.Terminate(EndQuit, o)
			return
		}

		coord, err := parseFire(msg)
		if err != nil {
			// Same turn continues; no turn switch on a bad command.
			_ = s.send(i, "ERROR "+err.Error())
			continue
		}

		res, sunk := s.m.Board(o).FireAt(coord)
		if res == game.FireAlreadyShot {
			_ = s.send(i, "RESULT ALREADY_SHOT")
			_ = s.send(i, "ALREADY_SHOT")
			continue
		}

		s.m.IncMoves(i)
		_ = s.send(i, formatResult(res, sunk))

		switch res {
		case game.FireSunk:
			up := strings.ToUpper(sunk)
			_ = s.send(i, "SUNK "+up)
			_ = s.send(o, "YOUR_SHIP_SUNK "+up)
			s.deps.Sink.System(fmt.Sprintf("[MATCH] %s sank %s's %s at %s",
				s.m.PlayerName(i), s.m.PlayerName(o), sunk, coord))
			if s.m.Board(o).AllSunk() {
				s.winByFire(i, o)
				return
			}
		case game.FireHit:
			_ = s.send(i, "HIT")
			_ = s.send(o, "YOUR_SHIP_HIT")
			s.deps.Sink.System(fmt.Sprintf("[MATCH] %s hit %s at %s",
				s.m.PlayerName(i), s.m.PlayerName(o), coord))
		case game.FireMiss:
			_ = s.send(i, "MISS")
			_ = s.send(o, "OPPONENT_MISS")
			s.deps.Sink.System(fmt.Sprintf("[MATCH] %s missed at %s",
				s.m.PlayerName(i), coord))
		}

		s.m.SwitchTurn()
	}
}

// sendTurnPrompts pushes the active player's views and READY token and the
// opponent's WAITING. On failure it reports which slot's endpoint is gone.
func (s *Supervisor) sendTurnPrompts(i, o int) (int, error) {
	if err := s.send(i, "OWN_BOARD\n"+s.m.Board(i).RenderOwn()+"\n"); err != nil {
		return i, err
	}
	if err := s.send(i, "GRID\n"+s.m.Board(o).RenderGrid()+"\n"); err != nil {
		return i, err
	}
	if err := s.send(i, "READY"); err != nil {
		return i, err
	}
	if err := s.send(i, fmt.Sprintf("You have %d seconds to make your move.",
		int(s.deps.Timings.Turn.Seconds()))); err != nil {
		return i, err
	}
	if err := s.send(o, "WAITING"); err != nil {
		return o, err
	}
	return -1, nil
}

func (s *Supervisor) winByFire(i, o int) {
	grid := s.m.Board(o).RenderGrid()
	_ = s.send(i, "GRID\n"+grid+"\n")
	_ = s.send(o, "GRID\n"+grid+"\n")
	_ = s.send(i, fmt.Sprintf("WIN %d", s.m.Moves(i)))
	_ = s.send(o, "LOSE")
	s.deps.Sink.System(fmt.Sprintf("[MATCH] %s beat %s in %d moves",
		s.m.PlayerName(i), s.m.PlayerName(o), s.m.Moves(i)))
	s.term.Terminate(EndWin, i)
}

// awaitRejoin holds the match open for the reconnect window after slot i's
// endpoint vanished. The registry rebinds the slot when the name returns;
// this watcher observes the signal or the window expiry.
func (s *Supervisor) awaitRejoin(ctx context.Context, i int) error {
	if !s.active() {
		return errSuperseded
	}
	o := 1 - i
	s.m.MarkDisconnected(i)

	window := s.deps.Timings.ReconnectWindow
	slog.Info("player disconnected, reconnect window open",
		"match", s.m.Key(), "player", s.m.PlayerName(i), "window", window)

	// Half-open sockets sometimes still take writes; tell the vanished side
	// its options, best-effort.
	if ep := s.m.Endpoint(i); ep != nil {
		_ = ep.SendGame(fmt.Sprintf(
			"INFO: You have been disconnected. If you reconnect within %d seconds, you can resume the game.",
			int(window.Seconds())))
	}
	if s.m.Connected(o) {
		_ = s.send(o, fmt.Sprintf("INFO: Opponent disconnected. Waiting up to %d seconds...",
			int(window.Seconds())))
	}

	ticker := time.NewTicker(s.deps.Timings.WatcherPoll)
	defer ticker.Stop()

	for {
		select {
		case <-s.m.Rejoined(i):
			slog.Info("player reconnected", "match", s.m.Key(), "player", s.m.PlayerName(i))
			_ = s.send(i, fmt.Sprintf("WELCOME PLAYER %d", i+1))
			return nil
		case <-ticker.C:
			if !s.m.WindowExpired(window) {
				continue
			}
			if s.m.Connected(o) {
				_ = s.send(o, "OPPONENT_TIMEOUT. You win!")
				s.term.Terminate(EndForfeit, o)
			} else {
				s.term.Terminate(EndAbandoned, -1)
			}
			return errTerminated
		case <-s.term.Done():
			return errTerminated
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
	}
}

// finish runs exactly once per supervisor. A superseded supervisor drops
// out without mutating shared state.
func (s *Supervisor) finish() {
	if !s.active() {
		slog.Debug("superseded supervisor exiting", "match", s.m.Key())
		return
	}
	if !s.term.Terminated() {
		s.term.Terminate(EndAbandoned, -1)
	}
	s.m.SetPhase(PhaseTerminated)
	s.deps.Registry.FinishMatch(s.m)

	reason, winner := s.term.Result()
	winnerName := "-"
	if winner >= 0 {
		winnerName = s.m.PlayerName(winner)
	}
	slog.Info("match finished",
		"match", s.m.Key(), "reason", reason.String(), "winner", winnerName)

	s.record(reason, winner)
	s.requeue(reason, winner)
}

func (s *Supervisor) record(reason EndReason, winner int) {
	if s.deps.Recorder == nil || reason == EndNone {
		return
	}
	res := MatchResult{
		PlayerA:   s.m.PlayerName(0),
		PlayerB:   s.m.PlayerName(1),
		Outcome:   reason.String(),
		StartedAt: s.started,
		EndedAt:   time.Now(),
	}
	if winner >= 0 {
		res.Winner = s.m.PlayerName(winner)
		res.Loser = s.m.PlayerName(1 - winner)
		res.Moves = s.m.Moves(winner)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Recorder.RecordResult(ctx, res); err != nil {
		slog.Error("recording match result", "match", s.m.Key(), "err", err)
	}
}

// requeue puts survivors back in the lobby: winner at the head, loser of a
// played-out game at the tail. Quitters and turn-timeout forfeits are
// disconnected instead.
func (s *Supervisor) requeue(reason EndReason, winner int) {
	if s.deps.Lobby == nil {
		return
	}
	switch reason {
	case EndWin:
		s.requeuePlayer(winner, true)
		s.requeuePlayer(1-winner, false)
	case EndQuit:
		s.requeuePlayer(winner, true)
		if ep := s.m.Endpoint(1 - winner); ep != nil {
			ep.Close("quit")
		}
	case EndTurnTimeout:
		s.requeuePlayer(winner, true)
		if ep := s.m.Endpoint(1 - winner); ep != nil {
			ep.Close("turn timeout")
		}
	case EndForfeit:
		s.requeuePlayer(winner, true)
	}
}

func (s *Supervisor) requeuePlayer(i int, asWinner bool) {
	if i < 0 || !s.m.Connected(i) {
		return
	}
	ep := s.m.Endpoint(i)
	if ep == nil || ep.Closed() {
		return
	}
	if asWinner {
		s.deps.Lobby.ArriveAsWinner(ep, s.m.PlayerName(i))
	} else {
		s.deps.Lobby.ArriveFresh(ep, s.m.PlayerName(i))
	}
}

func (s *Supervisor) send(i int, text string) error {
	ep := s.m.Endpoint(i)
	if ep == nil {
		return ErrPeerGone
	}
	return ep.SendGame(text)
}

func (s *Supervisor) sendBoth(text string) {
	for i := range 2 {
		_ = s.send(i, text)
	}
}

// recv blocks on slot i's current endpoint. It unblocks on the turn clock
// (timeout > 0), match termination, or ctx.
func (s *Supervisor) recv(ctx context.Context, i int, timeout time.Duration) (string, error) {
	ep := s.m.Endpoint(i)
	if ep == nil || ep.Closed() {
		return "", ErrPeerGone
	}

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		rctx, tcancel = context.WithTimeout(rctx, timeout)
		defer tcancel()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.term.Done():
			cancel()
		case <-done:
		}
	}()

	return ep.RecvGame(rctx)
}
