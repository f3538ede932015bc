package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadside-game/broadside/internal/crypto"
	"github.com/broadside-game/broadside/internal/protocol"
)

func pipeEndpoint(t *testing.T, cipher *crypto.PayloadCipher, sink ChatSink) (*Endpoint, net.Conn) {
	t.Helper()
	srvConn, cliConn := net.Pipe()
	ep := NewEndpoint(srvConn, cipher, sink)
	t.Cleanup(func() {
		ep.Close("test cleanup")
		_ = cliConn.Close()
	})
	return ep, cliConn
}

func TestEndpoint_SendRecvGame(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	ep := NewEndpoint(srvConn, nil, nil)
	t.Cleanup(func() { ep.Close("test cleanup") })
	c := newTestClient(t, cliConn)

	require.NoError(t, ep.SendGame("READY"))
	assert.Equal(t, "READY", c.nextGame())

	c.sendGame("FIRE A1")
	msg, err := ep.RecvGame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FIRE A1", msg)
}

func TestEndpoint_SeqStartsAtZeroAndIncrements(t *testing.T) {
	ep, cliConn := pipeEndpoint(t, nil, nil)

	go func() {
		_ = ep.SendGame("one")
		_ = ep.SendChat("two")
		_ = ep.SendGame("three")
	}()

	for want := uint32(0); want < 3; want++ {
		frame, err := protocol.ReadFrame(cliConn)
		require.NoError(t, err)
		assert.Equal(t, want, frame.Seq)
	}
}

func TestEndpoint_ChatDemux(t *testing.T) {
	sink := &chatRecorder{}
	ep, cliConn := pipeEndpoint(t, nil, sink)
	ep.SetName("alice")
	c := newTestClient(t, cliConn)

	c.sendChat("hello everyone")
	require.Eventually(t, func() bool {
		return len(sink.Lines()) == 1
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, "alice: hello everyone", sink.Lines()[0])

	// The chat frame never surfaces on the game stream.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ep.RecvGame(ctx)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestEndpoint_RecvCancelled(t *testing.T) {
	ep, _ := pipeEndpoint(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ep.RecvGame(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEndpoint_RecvTimeoutIsDeadlineExceeded(t *testing.T) {
	ep, _ := pipeEndpoint(t, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ep.RecvGame(ctx)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEndpoint_PeerGoneOnConnClose(t *testing.T) {
	ep, cliConn := pipeEndpoint(t, nil, nil)

	require.NoError(t, cliConn.Close())
	_, err := ep.RecvGame(context.Background())
	require.ErrorIs(t, err, ErrPeerGone)
	assert.True(t, ep.Closed())
}

func TestEndpoint_CorruptFrameClosesConnection(t *testing.T) {
	ep, cliConn := pipeEndpoint(t, nil, nil)

	buf, err := protocol.Build(0, protocol.TypeGame, []byte("FIRE A1"))
	require.NoError(t, err)
	buf[protocol.HeaderSize] ^= 0xFF
	go func() { _, _ = cliConn.Write(buf) }()

	_, err = ep.RecvGame(context.Background())
	require.ErrorIs(t, err, ErrPeerGone)
	assert.True(t, ep.Closed())
}

func TestEndpoint_SendAfterClose(t *testing.T) {
	ep, _ := pipeEndpoint(t, nil, nil)

	ep.Close("test")
	err := ep.SendGame("READY")
	require.ErrorIs(t, err, ErrPeerGone)
}

func TestEndpoint_OnCloseRunsOnce(t *testing.T) {
	ep, _ := pipeEndpoint(t, nil, nil)

	calls := 0
	ep.SetOnClose(func(*Endpoint) { calls++ })
	ep.Close("first")
	ep.Close("second")
	assert.Equal(t, 1, calls)
}

func TestEndpoint_EncryptedRoundTrip(t *testing.T) {
	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := crypto.NewPayloadCipher(key)
	require.NoError(t, err)

	ep, cliConn := pipeEndpoint(t, cipher, nil)
	c := newTestClientCipher(t, cliConn, cipher)

	require.NoError(t, ep.SendGame("READY"))
	assert.Equal(t, "READY", c.nextGame())

	c.sendGame("FIRE B5")
	msg, err := ep.RecvGame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "FIRE B5", msg)
}

func TestEndpoint_PlaintextToEncryptedEndpointCloses(t *testing.T) {
	key := make([]byte, crypto.KeySize)
	cipher, err := crypto.NewPayloadCipher(key)
	require.NoError(t, err)

	ep, cliConn := pipeEndpoint(t, cipher, nil)

	// Too short to even carry a nonce: decryption fails and the peer is
	// treated as gone.
	buf, err := protocol.Build(0, protocol.TypeGame, []byte("hi"))
	require.NoError(t, err)
	go func() { _, _ = cliConn.Write(buf) }()

	_, err = ep.RecvGame(context.Background())
	require.ErrorIs(t, err, ErrPeerGone)
}
