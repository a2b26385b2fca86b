package tcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voxelhost.ai/internal/protocol"
	"voxelhost.ai/internal/terrain"
	"voxelhost.ai/internal/transport"
)

func TestListener_RoundTrip(t *testing.T) {
	l, err := Listen("127.0.0.1:0", zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- l.Serve(ctx) }()

	c, err := Dial(ctx, l.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Send(protocol.TerrainChunkRequest{Key: terrain.ChunkKey{X: 2, Y: 3}}))

	var mb transport.Mailbox
	require.Eventually(t, func() bool {
		if ms := l.NewConnections(); len(ms) > 0 {
			mb = ms[0]
		}
		return mb != nil
	}, 2*time.Second, 5*time.Millisecond)

	var got []protocol.ClientMsg
	require.Eventually(t, func() bool {
		got = append(got, mb.NewMessages()...)
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.TerrainChunkRequest{Key: terrain.ChunkKey{X: 2, Y: 3}}, got[0])

	mb.Send(protocol.Chat{Kind: protocol.ChatPrivate, Message: "hello"})
	m, err := c.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.Chat{Kind: protocol.ChatPrivate, Message: "hello"}, m)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.NoError(t, l.Err())
}
