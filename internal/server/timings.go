package server

import (
	"time"

	"github.com/broadside-game/broadside/internal/config"
)

// Timings collects the contract-level clocks. Tests shorten them.
type Timings struct {
	Turn            time.Duration // per-turn clock
	ReconnectWindow time.Duration // from first disconnect
	AnnounceLead    time.Duration // lobby pairing announcement lead
	PairingInterval time.Duration // lobby pairing tick
	WatcherPoll     time.Duration // reconnect watcher poll
	Auth            time.Duration // wait for the USERNAME packet
}

// DefaultTimings returns the contract defaults (30 s turn, 60 s window, 5 s
// lobby lead, 500 ms pairing and watcher ticks).
func DefaultTimings() Timings {
	return Timings{
		Turn:            30 * time.Second,
		ReconnectWindow: 60 * time.Second,
		AnnounceLead:    5 * time.Second,
		PairingInterval: 500 * time.Millisecond,
		WatcherPoll:     500 * time.Millisecond,
		Auth:            30 * time.Second,
	}
}

func timingsFromConfig(cfg config.Server) Timings {
	t := DefaultTimings()
	if cfg.TurnTimeout > 0 {
		t.Turn = time.Duration(cfg.TurnTimeout) * time.Second
	}
	if cfg.ReconnectWindow > 0 {
		t.ReconnectWindow = time.Duration(cfg.ReconnectWindow) * time.Second
	}
	if cfg.LobbyAnnounceLead > 0 {
		t.AnnounceLead = time.Duration(cfg.LobbyAnnounceLead) * time.Second
	}
	if cfg.PairingInterval > 0 {
		t.PairingInterval = time.Duration(cfg.PairingInterval) * time.Millisecond
	}
	if cfg.WatcherPoll > 0 {
		t.WatcherPoll = time.Duration(cfg.WatcherPoll) * time.Millisecond
	}
	if cfg.AuthTimeout > 0 {
		t.Auth = time.Duration(cfg.AuthTimeout) * time.Second
	}
	return t
}
