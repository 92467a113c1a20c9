package node

import (
	"context"
	"crypto/ed25519"
	"strconv"
	"testing"
	"time"

	"github.com/gitzhang10/alephdag/config"
	"github.com/gitzhang10/alephdag/sign"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

var clusterPort = map[string]int{
	"node0": 8100,
	"node1": 8110,
	"node2": 8120,
	"node3": 8130,
}

func setupNodes(t *testing.T, logLevel int, batchSize int, rounds int) []*Node {
	names := make([]string, 4)
	clusterAddrWithPorts := make(map[string]string)
	clusterIndex := make(map[string]int)
	for name, port := range clusterPort {
		i, err := strconv.Atoi(name[4:])
		require.NoError(t, err)
		names[i] = name
		clusterAddrWithPorts[name] = "127.0.0.1:" + strconv.Itoa(port)
		clusterIndex[name] = i + 1
	}

	// create the ED25519 keys
	privKeys := make([]ed25519.PrivateKey, 4)
	pubKeyMap := make(map[string]ed25519.PublicKey)
	for i := 0; i < 4; i++ {
		var pub ed25519.PublicKey
		privKeys[i], pub = sign.GenED25519Keys()
		pubKeyMap[names[i]] = pub
	}

	// create the threshold keys
	vk, sks, err := sign.GenerateKeys(3, 4)
	require.NoError(t, err)

	nodes := make([]*Node, 4)
	for i := 0; i < 4; i++ {
		conf := &config.Config{
			Name:                 names[i],
			Index:                i + 1,
			MaxPool:              10,
			LogLevel:             logLevel,
			Rounds:               rounds,
			BatchSize:            batchSize,
			PollInterval:         20 * time.Millisecond,
			QuorumTimeout:        20 * time.Second,
			ClusterPort:          clusterPort,
			ClusterIndex:         clusterIndex,
			ClusterAddrWithPorts: clusterAddrWithPorts,
			PublicKeyMap:         pubKeyMap,
			PrivateKey:           privKeys[i],
			TsPublicKey:          vk,
			TsPrivateKey:         sks[i],
		}
		nodes[i], err = NewNode(conf)
		require.NoError(t, err)
		require.NoError(t, nodes[i].StartP2PListen())
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, nodes[i].EstablishP2PConns())
	}
	return nodes
}

func clean(nodes []*Node) {
	for _, n := range nodes {
		_ = n.Close()
	}
}

func TestWith4Nodes(t *testing.T) {
	const rounds = 6
	nodes := setupNodes(t, 3, 2, rounds)
	defer clean(nodes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, n := range nodes {
		n := n
		go func() {
			_ = n.Run(ctx)
		}()
	}

	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if n.DAG().Round() != rounds {
				return false
			}
		}
		return true
	}, 30*time.Second, 50*time.Millisecond)

	// every node pulled units of every other node over the network
	for _, n := range nodes {
		creators := make(map[string]bool)
		for r := uint64(0); r < rounds; r++ {
			require.NoError(t, n.DAG().Sync(ctx, r))
			units, err := n.DAG().RoundUnits(ctx, r)
			require.NoError(t, err)
			for _, u := range units {
				creators[u.Creator] = true
			}
		}
		require.Len(t, creators, 4, "%s", n.name)

		order, err := n.DAG().LinearOrder()
		require.NoError(t, err)
		require.NotEmpty(t, order)
		seen := make(map[ulid.ULID]bool)
		for _, id := range order {
			require.False(t, seen[id])
			seen[id] = true
		}
	}
}

func TestRunWithoutListen(t *testing.T) {
	vk, sks, err := sign.GenerateKeys(1, 1)
	require.NoError(t, err)
	n, err := NewNode(&config.Config{Name: "node0", Index: 1, TsPublicKey: vk, TsPrivateKey: sks[0]})
	require.NoError(t, err)
	require.Error(t, n.Run(context.Background()))
	require.Error(t, n.EstablishP2PConns())
	require.NoError(t, n.Close())
}

func TestPayloadSize(t *testing.T) {
	n := &Node{batchSize: 3}
	require.Len(t, n.newPayload(), 3*txSize)
}
