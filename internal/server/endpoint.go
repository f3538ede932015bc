package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/broadside-game/broadside/internal/crypto"
	"github.com/broadside-game/broadside/internal/protocol"
)

// ChatSink receives CHAT payloads demultiplexed off an endpoint's wire.
type ChatSink interface {
	Broadcast(from *Endpoint, text string)
}

// Endpoint wraps one client socket: framing, the send lock, the receive
// loop, and cancellation. GAME payloads go to a single-consumer channel;
// CHAT payloads are forwarded to the sink without involving the consumer.
type Endpoint struct {
	conn   net.Conn
	cipher *crypto.PayloadCipher
	remote string

	sendMu sync.Mutex
	seq    uint32

	gameCh    chan string
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	name    string
	sink    ChatSink
	onClose func(*Endpoint)
}

// NewEndpoint wraps conn and starts the receive loop. cipher may be nil for
// plaintext payloads.
func NewEndpoint(conn net.Conn, cipher *crypto.PayloadCipher, sink ChatSink) *Endpoint {
	remote := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(remote); err == nil {
		remote = host
	}

	ep := &Endpoint{
		conn:   conn,
		cipher: cipher,
		remote: remote,
		gameCh: make(chan string, 16),
		closed: make(chan struct{}),
		sink:   sink,
	}
	go ep.readLoop()
	return ep
}

// Remote returns the remote host for logging.
func (ep *Endpoint) Remote() string {
	return ep.remote
}

// Name returns the display name claimed by this connection, or "".
func (ep *Endpoint) Name() string {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return ep.name
}

// SetName records the authenticated display name.
func (ep *Endpoint) SetName(name string) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.name = name
}

// SetOnClose installs a hook invoked exactly once when the endpoint closes.
func (ep *Endpoint) SetOnClose(f func(*Endpoint)) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.onClose = f
}

// SendGame frames text as a GAME packet and writes it.
func (ep *Endpoint) SendGame(text string) error {
	return ep.send(protocol.TypeGame, text)
}

// SendChat frames text as a CHAT packet and writes it.
func (ep *Endpoint) SendChat(text string) error {
	return ep.send(protocol.TypeChat, text)
}

func (ep *Endpoint) send(typ protocol.Type, text string) error {
	payload := []byte(text)
	if ep.cipher != nil {
		sealed, err := ep.cipher.Seal(payload)
		if err != nil {
			return fmt.Errorf("sealing payload: %w", err)
		}
		payload = sealed
	}

	ep.sendMu.Lock()
	defer ep.sendMu.Unlock()

	select {
	case <-ep.closed:
		return ErrPeerGone
	default:
	}

	frame, err := protocol.Build(ep.seq, typ, payload)
	if err != nil {
		return fmt.Errorf("building frame: %w", err)
	}
	ep.seq++

	if _, err := ep.conn.Write(frame); err != nil {
		ep.Close("write failed")
		return fmt.Errorf("writing frame to %s: %w", ep.remote, ErrPeerGone)
	}
	return nil
}

// RecvGame returns the next GAME payload. It unblocks with ErrCancelled when
// ctx is done and with ErrPeerGone when the connection is lost. CHAT frames
// arriving in between are broadcast transparently by the receive loop.
func (ep *Endpoint) RecvGame(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	default:
	}

	select {
	case msg, ok := <-ep.gameCh:
		if !ok {
			return "", ErrPeerGone
		}
		return msg, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// Close tears the endpoint down: the socket is closed, the receive loop
// exits, and the detach hook runs. Safe to call from any goroutine, any
// number of times.
func (ep *Endpoint) Close(reason string) {
	ep.closeOnce.Do(func() {
		close(ep.closed)
		_ = ep.conn.Close()

		ep.mu.Lock()
		hook := ep.onClose
		name := ep.name
		ep.mu.Unlock()

		if hook != nil {
			hook(ep)
		}
		slog.Debug("endpoint closed", "remote", ep.remote, "player", name, "reason", reason)
	})
}

// Closed reports whether Close has run.
func (ep *Endpoint) Closed() bool {
	select {
	case <-ep.closed:
		return true
	default:
		return false
	}
}

// Done exposes the close signal.
func (ep *Endpoint) Done() <-chan struct{} {
	return ep.closed
}

// readLoop is the sole reader of the socket. Framing, checksum and
// decryption failures all close the connection: the peer is considered gone.
func (ep *Endpoint) readLoop() {
	defer close(ep.gameCh)

	for {
		frame, err := protocol.ReadFrame(ep.conn)
		if err != nil {
			ep.Close("read failed")
			return
		}

		payload := frame.Payload
		if ep.cipher != nil {
			payload, err = ep.cipher.Open(payload)
			if err != nil {
				ep.Close("decrypt failed")
				return
			}
		}

		switch frame.Type {
		case protocol.TypeChat:
			ep.mu.Lock()
			name, sink := ep.name, ep.sink
			ep.mu.Unlock()
			if sink != nil && name != "" {
				sink.Broadcast(ep, string(payload))
			}
		case protocol.TypeGame:
			select {
			case ep.gameCh <- string(payload):
			case <-ep.closed:
				return
			}
		default:
			slog.Debug("dropping frame of unknown type",
				"remote", ep.remote, "type", frame.Type, "seq", frame.Seq)
		}
	}
}
