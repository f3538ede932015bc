package server

import (
	"fmt"
	"log/slog"
	"sync"
)

// Broadcast is the process-wide fan-out for CHAT traffic. Membership tracks
// the session registry; it holds endpoints, not their lifecycles. Delivery
// order across endpoints is not guaranteed; per-endpoint order is.
type Broadcast struct {
	mu      sync.Mutex
	members map[*Endpoint]struct{}
}

// NewBroadcast returns an empty sink.
func NewBroadcast() *Broadcast {
	return &Broadcast{members: make(map[*Endpoint]struct{})}
}

// Add registers an endpoint as a chat recipient.
func (b *Broadcast) Add(ep *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.members[ep] = struct{}{}
}

// Remove drops an endpoint from the sink.
func (b *Broadcast) Remove(ep *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, ep)
}

// Len returns the current member count.
func (b *Broadcast) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.members)
}

// Broadcast fans "<sender>: <text>" out to every member except the sender.
// A failed send evicts the failing endpoint.
func (b *Broadcast) Broadcast(from *Endpoint, text string) {
	b.deliver(from, fmt.Sprintf("%s: %s", from.Name(), text))
}

// System fans a server notice out to every member. Notices ride the CHAT
// channel so they never perturb anyone's GAME stream.
func (b *Broadcast) System(text string) {
	b.deliver(nil, text)
}

func (b *Broadcast) deliver(from *Endpoint, line string) {
	b.mu.Lock()
	targets := make([]*Endpoint, 0, len(b.members))
	for ep := range b.members {
		if ep != from {
			targets = append(targets, ep)
		}
	}
	b.mu.Unlock()

	for _, ep := range targets {
		if err := ep.SendChat(line); err != nil {
			slog.Debug("evicting endpoint from chat sink", "player", ep.Name(), "err", err)
			b.Remove(ep)
			ep.Close("chat send failed")
		}
	}
}
