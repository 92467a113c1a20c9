package network

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/gitzhang10/alephdag/chdag"
	"github.com/gitzhang10/alephdag/conn"
	"github.com/gitzhang10/alephdag/sign"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

// startServer serves a single-participant chDAG holding one round 0 unit on addr.
func startServer(t *testing.T, ctx context.Context, addr string, pubKeys map[string]ed25519.PublicKey) *chdag.ChDAG {
	vk, sks, err := sign.GenerateKeys(1, 1)
	require.NoError(t, err)
	reg := NewNetwork(hclog.NewNullLogger())
	d, err := chdag.New(&chdag.Config{
		Name:            "node0",
		Registry:        reg,
		SecretKey:       sks[0],
		VerificationKey: vk,
		Logger:          hclog.NewNullLogger(),
	})
	require.NoError(t, err)
	reg.Join(d)
	_, err = d.CreateUnit(ctx, []byte("payload"))
	require.NoError(t, err)

	trans, err := conn.NewTCPTransportWithLogger(addr, time.Second, hclog.NewNullLogger(), 2, ReflectedTypesMap())
	require.NoError(t, err)
	t.Cleanup(func() { trans.Close() })
	go NewServer(d, trans, pubKeys, hclog.NewNullLogger()).Serve(ctx)
	return d
}

func newClient(t *testing.T, addr string) *conn.NetworkTransport {
	trans, err := conn.NewTCPTransportWithLogger(addr, time.Second, hclog.NewNullLogger(), 2, ReflectedTypesMap())
	require.NoError(t, err)
	t.Cleanup(func() { trans.Close() })
	return trans
}

func TestRemotePeerFetchesRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priv, pub := sign.GenED25519Keys()
	d := startServer(t, ctx, "127.0.0.1:7101", map[string]ed25519.PublicKey{"node1": pub})
	peer := NewRemotePeer("node0", 1, "127.0.0.1:7101", "node1", priv, newClient(t, "127.0.0.1:7102"))

	count, err := peer.RoundUnitCount(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	units, err := peer.RoundUnits(ctx, 0)
	require.NoError(t, err)
	require.Len(t, units, 1)
	local, err := d.RoundUnits(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, local[0].ID, units[0].ID)
	require.Equal(t, "node0", units[0].Creator)
	require.Equal(t, []byte("payload"), units[0].Data)
	require.True(t, local[0].Share.Equal(units[0].Share))

	units, err = peer.RoundUnits(ctx, 5)
	require.NoError(t, err)
	require.Empty(t, units)
}

func TestServerRejectsUnauthenticated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, pub := sign.GenED25519Keys()
	other, _ := sign.GenED25519Keys()
	startServer(t, ctx, "127.0.0.1:7103", map[string]ed25519.PublicKey{"node1": pub})
	client := newClient(t, "127.0.0.1:7104")

	forged := NewRemotePeer("node0", 1, "127.0.0.1:7103", "node1", other, client)
	_, err := forged.RoundUnitCount(ctx, 0)
	require.Error(t, err)

	stranger := NewRemotePeer("node0", 1, "127.0.0.1:7103", "node9", other, client)
	_, err = stranger.RoundUnits(ctx, 0)
	require.Error(t, err)
}
