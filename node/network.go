package node

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gitzhang10/alephdag/conn"
	"github.com/gitzhang10/alephdag/network"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StartP2PListen starts the node to listen for P2P connections and registers the cluster.
func (n *Node) StartP2PListen() error {
	var err error
	n.trans, err = conn.NewTCPTransportWithLogger(":"+strconv.Itoa(n.clusterPort[n.name]), 30*time.Second,
		n.logger.Named("conn"), n.maxPool, network.ReflectedTypesMap())
	if err != nil {
		return err
	}
	n.server = network.NewServer(n.dag, n.trans, n.publicKeyMap, n.logger.Named("server"))
	n.joinCluster()
	return nil
}

// EstablishP2PConns establishes P2P connections with the other nodes.
func (n *Node) EstablishP2PConns() error {
	if n.trans == nil {
		return errors.New("networkTransport has not been created")
	}
	for name, addrWithPort := range n.clusterAddrWithPorts {
		if name == n.name {
			continue
		}
		connect, err := n.trans.GetConn(addrWithPort)
		if err != nil {
			return err
		}
		err = n.trans.ReturnConn(connect)
		if err != nil {
			return err
		}
		n.logger.Debug("connection has been established", "sender", n.name, "receiver", addrWithPort)
	}
	return nil
}

// ServeMetrics exposes the node's collectors on /metrics until ctx is done.
func (n *Node) ServeMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: n.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	n.logger.Info("serving metrics", "addr", n.metricsAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "serve metrics")
	}
	return nil
}
