package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/broadside-game/broadside/internal/crypto"
	"github.com/broadside-game/broadside/internal/game"
	"github.com/broadside-game/broadside/internal/protocol"
)

const waitTimeout = 5 * time.Second

// testTimings shortens every contract clock so scenarios run in milliseconds.
func testTimings() Timings {
	return Timings{
		Turn:            2 * time.Second,
		ReconnectWindow: 400 * time.Millisecond,
		AnnounceLead:    50 * time.Millisecond,
		PairingInterval: 20 * time.Millisecond,
		WatcherPoll:     20 * time.Millisecond,
		Auth:            2 * time.Second,
	}
}

// chatRecorder is a ChatSink capturing broadcast lines.
type chatRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (c *chatRecorder) Broadcast(from *Endpoint, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, from.Name()+": "+text)
}

func (c *chatRecorder) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// testClient speaks the wire protocol from the client side of a connection.
// A background reader demultiplexes GAME and CHAT payloads into channels.
type testClient struct {
	t      *testing.T
	conn   net.Conn
	cipher *crypto.PayloadCipher

	sendMu sync.Mutex
	seq    uint32

	game chan string
	chat chan string
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	return newTestClientCipher(t, conn, nil)
}

func newTestClientCipher(t *testing.T, conn net.Conn, cipher *crypto.PayloadCipher) *testClient {
	t.Helper()
	c := &testClient{
		t:      t,
		conn:   conn,
		cipher: cipher,
		game:   make(chan string, 256),
		chat:   make(chan string, 256),
	}
	go c.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *testClient) readLoop() {
	defer close(c.game)
	defer close(c.chat)
	for {
		frame, err := protocol.ReadFrame(c.conn)
		if err != nil {
			return
		}
		payload := frame.Payload
		if c.cipher != nil {
			payload, err = c.cipher.Open(payload)
			if err != nil {
				return
			}
		}
		switch frame.Type {
		case protocol.TypeGame:
			c.game <- string(payload)
		case protocol.TypeChat:
			c.chat <- string(payload)
		}
	}
}

func (c *testClient) send(typ protocol.Type, text string) {
	c.t.Helper()
	payload := []byte(text)
	if c.cipher != nil {
		sealed, err := c.cipher.Seal(payload)
		require.NoError(c.t, err)
		payload = sealed
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	buf, err := protocol.Build(c.seq, typ, payload)
	require.NoError(c.t, err)
	c.seq++
	_, err = c.conn.Write(buf)
	require.NoError(c.t, err)
}

func (c *testClient) sendGame(text string) { c.send(protocol.TypeGame, text) }
func (c *testClient) sendChat(text string) { c.send(protocol.TypeChat, text) }

// nextGame returns the next GAME payload, whatever it is.
func (c *testClient) nextGame() string {
	c.t.Helper()
	select {
	case msg, ok := <-c.game:
		if !ok {
			c.t.Fatal("connection closed while waiting for a game message")
		}
		return msg
	case <-time.After(waitTimeout):
		c.t.Fatal("timed out waiting for a game message")
	}
	return ""
}

// waitGame drains GAME payloads until one starts with prefix and returns it.
func (c *testClient) waitGame(prefix string) string {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg, ok := <-c.game:
			if !ok {
				c.t.Fatalf("connection closed while waiting for game message %q", prefix)
			}
			if strings.HasPrefix(msg, prefix) {
				return msg
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for game message %q", prefix)
		}
	}
}

// waitChat drains CHAT payloads until one contains substr and returns it.
func (c *testClient) waitChat(substr string) string {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg, ok := <-c.chat:
			if !ok {
				c.t.Fatalf("connection closed while waiting for chat message %q", substr)
			}
			if strings.Contains(msg, substr) {
				return msg
			}
		case <-deadline:
			c.t.Fatalf("timed out waiting for chat message %q", substr)
		}
	}
}

// expectClosed waits for the server to drop the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-c.game:
			if !ok {
				return
			}
		case <-deadline:
			c.t.Fatal("timed out waiting for the connection to close")
		}
	}
}

// placeRow answers one placement prompt, putting the ship at the start of
// row (0-based), horizontally.
func (c *testClient) placeRow(row int, spec game.ShipSpec) {
	c.t.Helper()
	c.waitGame("Placing your " + spec.Name)
	c.sendGame(fmt.Sprintf("PLACE %c1 H %s", 'A'+rune(row), spec.Name))
	c.waitGame("PLACED")
}

// placeFleet walks the whole catalog, one ship per row from the top.
func (c *testClient) placeFleet() {
	c.t.Helper()
	for i, spec := range game.Catalog {
		c.placeRow(i, spec)
	}
}

// matchFixture wires two piped endpoints straight into a match supervisor,
// bypassing the TCP front door and the lobby pairing loop.
type matchFixture struct {
	t     *testing.T
	reg   *Registry
	lobby *Lobby
	sink  *Broadcast

	epA, epB *Endpoint
	ca, cb   *testClient

	done chan struct{}
}

func startTestMatch(t *testing.T, timings Timings) *matchFixture {
	return startTestMatchRecorded(t, timings, nil)
}

func startTestMatchRecorded(t *testing.T, timings Timings, rec Recorder) *matchFixture {
	t.Helper()

	sink := NewBroadcast()
	reg := NewRegistry(sink)
	lobby := NewLobby(timings, func(a, b QueuedPlayer) {})

	f := &matchFixture{
		t:     t,
		reg:   reg,
		lobby: lobby,
		sink:  sink,
		done:  make(chan struct{}),
	}
	f.epA, f.ca = f.dialPlayer("alice")
	f.epB, f.cb = f.dialPlayer("bob")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		defer close(f.done)
		StartMatch(ctx, MatchDeps{
			Registry: reg,
			Lobby:    lobby,
			Sink:     sink,
			Recorder: rec,
			Timings:  timings,
		}, QueuedPlayer{Ep: f.epA, Name: "alice"}, QueuedPlayer{Ep: f.epB, Name: "bob"})
	}()
	return f
}

// dialPlayer builds a registered server-side endpoint and its driving client.
func (f *matchFixture) dialPlayer(name string) (*Endpoint, *testClient) {
	f.t.Helper()
	srvConn, cliConn := net.Pipe()
	ep := NewEndpoint(srvConn, nil, f.sink)
	ep.SetName(name)
	ep.SetOnClose(func(e *Endpoint) { f.reg.Deregister(e) })
	_, err := f.reg.Register(name, ep)
	require.NoError(f.t, err)
	return ep, newTestClient(f.t, cliConn)
}

// reconnect opens a fresh connection claiming name and asserts it rebinds.
func (f *matchFixture) reconnect(name string) *testClient {
	f.t.Helper()
	srvConn, cliConn := net.Pipe()
	ep := NewEndpoint(srvConn, nil, f.sink)
	ep.SetName(name)
	ep.SetOnClose(func(e *Endpoint) { f.reg.Deregister(e) })
	m, err := f.reg.Register(name, ep)
	require.NoError(f.t, err)
	require.NotNil(f.t, m, "expected the registry to rebind %s into the live match", name)
	return newTestClient(f.t, cliConn)
}

// waitDone blocks until the supervisor goroutine exits.
func (f *matchFixture) waitDone() {
	f.t.Helper()
	select {
	case <-f.done:
	case <-time.After(waitTimeout):
		f.t.Fatal("timed out waiting for the match supervisor to finish")
	}
}
