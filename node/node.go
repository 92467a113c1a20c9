// Package node runs one participant over the network: it serves its chDAG to the other
// participants, pulls theirs through remote peers, creates units and logs the order.
package node

import (
	"context"
	"crypto/ed25519"
	"sort"
	"sync"
	"time"

	"github.com/gitzhang10/alephdag/chdag"
	"github.com/gitzhang10/alephdag/config"
	"github.com/gitzhang10/alephdag/conn"
	"github.com/gitzhang10/alephdag/metrics"
	"github.com/gitzhang10/alephdag/network"
	"github.com/hashicorp/go-hclog"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	txSize       = 250             // bytes of a generated transaction
	drainTimeout = 5 * time.Second // how long to keep ordering after the last unit
)

type Node struct {
	name    string
	logger  hclog.Logger
	network *network.Network
	dag     *chdag.ChDAG
	server  *network.Server
	trans   *conn.NetworkTransport

	registry    *prometheus.Registry
	metricsAddr string

	clusterPort          map[string]int
	clusterAddrWithPorts map[string]string // map from name to addr:port
	clusterIndex         map[string]int
	maxPool              int
	batchSize            int
	roundNumber          int // the number of units the node creates
	pollInterval         time.Duration

	//Used for ED25519 signature
	publicKeyMap map[string]ed25519.PublicKey
	privateKey   ed25519.PrivateKey

	lock       sync.Mutex
	created    map[ulid.ULID]time.Time // creation time of the local units
	ordered    int                     // length of the order already evaluated
	evaluation []time.Duration         // latency from creation to ordering of the local units
	commitTime []time.Time             // when each ordered unit was seen in the order
}

func NewNode(conf *config.Config) (*Node, error) {
	var n Node
	n.name = conf.Name
	n.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "alephdag-node",
		Output: hclog.DefaultOutput,
		Level:  hclog.Level(conf.LogLevel),
	})
	n.registry = prometheus.NewRegistry()
	m, err := metrics.New(conf.Name, n.registry)
	if err != nil {
		return nil, err
	}
	n.network = network.NewNetwork(n.logger.Named("network"))

	policy := chdag.MergeInvalid
	if conf.RejectByzantine {
		policy = chdag.RejectInvalid
	}
	n.pollInterval = conf.PollInterval
	if n.pollInterval <= 0 {
		n.pollInterval = chdag.DefaultPollInterval
	}
	n.dag, err = chdag.New(&chdag.Config{
		Name:            conf.Name,
		Registry:        n.network,
		SecretKey:       conf.TsPrivateKey,
		VerificationKey: conf.TsPublicKey,
		Logger:          n.logger.Named("chdag"),
		Metrics:         m,
		SyncLag:         conf.SyncLag,
		SyncWindow:      conf.SyncWindow,
		PollInterval:    n.pollInterval,
		QuorumTimeout:   conf.QuorumTimeout,
		Policy:          policy,
		ShareCacheSize:  conf.CoinCacheSize,
	})
	if err != nil {
		return nil, err
	}

	n.metricsAddr = conf.MetricsAddr
	n.clusterPort = conf.ClusterPort
	n.clusterAddrWithPorts = conf.ClusterAddrWithPorts
	n.clusterIndex = conf.ClusterIndex
	n.maxPool = conf.MaxPool
	n.batchSize = conf.BatchSize
	n.roundNumber = conf.Rounds
	n.publicKeyMap = conf.PublicKeyMap
	n.privateKey = conf.PrivateKey
	n.created = make(map[ulid.ULID]time.Time)
	return &n, nil
}

// DAG returns the node's chDAG.
func (n *Node) DAG() *chdag.ChDAG {
	return n.dag
}

// joinCluster registers the local chDAG and a remote peer for every other cluster member.
func (n *Node) joinCluster() {
	n.network.Join(n.dag)
	names := make([]string, 0, len(n.clusterAddrWithPorts))
	for name := range n.clusterAddrWithPorts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == n.name {
			continue
		}
		n.network.Join(network.NewRemotePeer(name, n.clusterIndex[name], n.clusterAddrWithPorts[name], n.name,
			n.privateKey, n.trans))
	}
}

// Run serves the chDAG, creates the configured number of units and keeps serving the other
// participants until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	if n.trans == nil {
		return errors.New("networkTransport has not been created")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go n.server.Serve(ctx)
	go n.dag.SyncLoop(ctx, n.pollInterval)
	if n.metricsAddr != "" {
		go func() {
			if err := n.ServeMetrics(ctx); err != nil {
				n.logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	if err := n.RunLoop(ctx); err != nil {
		return err
	}
	n.network.LogByzantineReports()
	<-ctx.Done()
	return nil
}

// RunLoop creates the configured number of units, then keeps ordering for a while and logs
// the latency and throughput of the local units.
func (n *Node) RunLoop(ctx context.Context) error {
	start := time.Now()
	for i := 0; i < n.roundNumber; i++ {
		unit, err := n.dag.CreateUnit(ctx, n.newPayload())
		if err != nil {
			return err
		}
		n.lock.Lock()
		n.created[unit.ID] = time.Now()
		n.lock.Unlock()
		if err := n.updateOrder(); err != nil {
			return err
		}
	}

	// wait for the last units to be ordered
	drain := time.NewTimer(drainTimeout)
	defer drain.Stop()
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()
	for !n.allOrdered() {
		select {
		case <-ctx.Done():
			return nil
		case <-drain.C:
			n.report(start)
			return nil
		case <-ticker.C:
		}
		if err := n.updateOrder(); err != nil {
			return err
		}
	}
	n.report(start)
	return nil
}

// updateOrder extends the linear order and records the latency of newly ordered local units.
func (n *Node) updateOrder() error {
	order, err := n.dag.LinearOrder()
	if err != nil {
		return err
	}
	now := time.Now()
	n.lock.Lock()
	defer n.lock.Unlock()
	for _, id := range order[n.ordered:] {
		n.commitTime = append(n.commitTime, now)
		if created, ok := n.created[id]; ok {
			n.evaluation = append(n.evaluation, now.Sub(created))
		}
	}
	if len(order) > n.ordered {
		n.logger.Debug("the order is extended", "node", n.name, "length", len(order))
	}
	n.ordered = len(order)
	return nil
}

// allOrdered reports whether every local unit but those of the last two rounds, whose heads
// cannot be decided, is ordered.
func (n *Node) allOrdered() bool {
	n.lock.Lock()
	defer n.lock.Unlock()
	return len(n.evaluation)+2 >= len(n.created)
}

func (n *Node) report(start time.Time) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if len(n.commitTime) == 0 || len(n.evaluation) == 0 {
		n.logger.Info("no unit is ordered", "node", n.name)
		return
	}
	pastTime := n.commitTime[len(n.commitTime)-1].Sub(start).Seconds()
	unitNum := len(n.commitTime)
	throughPut := float64(unitNum*n.batchSize) / pastTime
	var totalTime time.Duration
	for _, t := range n.evaluation {
		totalTime += t
	}
	latency := totalTime.Seconds() / float64(len(n.evaluation))

	n.logger.Info("the average", "latency", latency, "throughput", throughPut)
	n.logger.Info("the total order", "unit number", unitNum, "time", pastTime)
}

func (n *Node) newPayload() []byte {
	payload := make([]byte, 0, n.batchSize*txSize)
	for i := 0; i < n.batchSize; i++ {
		payload = append(payload, generateTX(txSize)...)
	}
	return payload
}

// Close stops the transport.
func (n *Node) Close() error {
	if n.trans == nil {
		return nil
	}
	return n.trans.Close()
}
