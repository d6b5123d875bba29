package network

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDrops struct{ n atomic.Int64 }

func (c *countingDrops) AddDropped() { c.n.Add(1) }

func TestPacketForwarder_SendsDatagrams(t *testing.T) {
	t.Parallel()

	sink, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sink.Close()
	port := sink.LocalAddr().(*net.UDPAddr).Port

	drops := &countingDrops{}
	fwd, err := NewPacketForwarder("127.0.0.1", port, drops, time.Second)
	require.NoError(t, err)
	defer fwd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fwd.Start(ctx)

	payload := []byte{1, 2, 3, 4, 5}
	fwd.ForwardAsync(payload)
	payload[0] = 99 // the forwarder must have copied the datagram

	require.NoError(t, sink.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, _, err := sink.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf[:n])
	assert.Zero(t, drops.n.Load())
}

func TestPacketForwarder_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	drops := &countingDrops{}
	fwd, err := NewPacketForwarder("127.0.0.1", 9, drops, time.Second)
	require.NoError(t, err)
	defer fwd.Close()

	// Not started: nothing drains the queue.
	for i := 0; i < forwardQueue+3; i++ {
		fwd.ForwardAsync([]byte{byte(i)})
	}
	assert.Equal(t, int64(3), drops.n.Load())
	assert.Equal(t, "127.0.0.1:9", fwd.Address())
}

func TestPacketForwarder_BadAddress(t *testing.T) {
	t.Parallel()

	_, err := NewPacketForwarder("bad host name with spaces", 1, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve forward address")
}
