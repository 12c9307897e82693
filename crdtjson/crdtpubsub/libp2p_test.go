package crdtpubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibP2PPubSub(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a libp2p host")
	}
	ps, err := NewLibP2PPubSub(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	exercisePubSub(t, ps)
}

func TestLibP2PPubSubAddrs(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a libp2p host")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ps, err := NewLibP2PPubSub(ctx, nil, nil, &LibP2POptions{
		BootstrapPeers: []string{"not-a-multiaddr"},
	})
	require.NoError(t, err)
	defer ps.Close()

	addrs := ps.Addrs()
	require.NotEmpty(t, addrs)
	assert.Contains(t, addrs[0], ps.Host().ID().String())
}
