/*
Package simulation runs a whole deployment in one process: a trusted dealer hands out the
threshold keys, every participant creates its units in its own goroutine while syncing in
the background, and at the end each participant's linear order and the Byzantine report
log are collected.
*/
package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/gitzhang10/alephdag/chdag"
	"github.com/gitzhang10/alephdag/metrics"
	"github.com/gitzhang10/alephdag/network"
	"github.com/gitzhang10/alephdag/sign"
	"github.com/hashicorp/go-hclog"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Config describes a simulated deployment.
type Config struct {
	Participants int
	Faulty       int // participants that serve tampered units
	Rounds       int
	BatchSize    int           // bytes of payload per unit
	Latency      time.Duration // added to every peer request
	SyncInterval time.Duration
	SyncLag      uint64
	Policy       chdag.MergePolicy
	Logger       hclog.Logger
	Registerer   prometheus.Registerer // nil leaves the metrics unregistered
}

// Result is what every participant ended up with.
type Result struct {
	Names   []string
	Faulty  []string
	Orders  map[string][]ulid.ULID
	Reports map[string]map[string]ulid.ULID // reporter -> creator -> unit
}

// Run simulates conf until every participant created conf.Rounds units, then completes every
// view and collects the orders.
func Run(ctx context.Context, conf *Config) (*Result, error) {
	if conf.Participants < 1 {
		return nil, errors.New("at least one participant is required")
	}
	if conf.Faulty < 0 || conf.Faulty*3 >= conf.Participants {
		return nil, errors.Errorf("%d faulty participants out of %d cannot be tolerated", conf.Faulty, conf.Participants)
	}
	logger := conf.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "simulation",
			Output: hclog.DefaultOutput,
			Level:  hclog.DefaultLevel,
		})
	}
	syncInterval := conf.SyncInterval
	if syncInterval <= 0 {
		syncInterval = chdag.DefaultPollInterval
	}
	syncLag := conf.SyncLag
	if syncLag == 0 {
		syncLag = chdag.DefaultSyncLag
	}

	n := conf.Participants
	vk, sks, err := sign.GenerateKeys(network.QuorumSize(n), n)
	if err != nil {
		return nil, err
	}
	faulty := make(map[int]bool, conf.Faulty)
	for _, i := range rand.Perm(n)[:conf.Faulty] {
		faulty[i] = true
	}

	reg := network.NewNetwork(logger.Named("network"))
	result := &Result{Orders: make(map[string][]ulid.ULID)}
	dags := make([]*chdag.ChDAG, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("node%d", i)
		var m *metrics.Metrics
		if conf.Registerer != nil {
			if m, err = metrics.New(name, conf.Registerer); err != nil {
				return nil, err
			}
		}
		dags[i], err = chdag.New(&chdag.Config{
			Name:            name,
			Registry:        reg,
			SecretKey:       sks[i],
			VerificationKey: vk,
			Logger:          logger.Named(name),
			Metrics:         m,
			SyncLag:         syncLag,
			PollInterval:    syncInterval,
			Policy:          conf.Policy,
		})
		if err != nil {
			return nil, err
		}
		reg.Join(&simPeer{dag: dags[i], latency: conf.Latency, faulty: faulty[i], lag: syncLag})
		result.Names = append(result.Names, name)
		if faulty[i] {
			result.Faulty = append(result.Faulty, name)
		}
	}
	sort.Strings(result.Faulty)
	logger.Info("participants are ready", "participants", n, "quorum", network.QuorumSize(n),
		"faulty", result.Faulty)

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()
	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for _, d := range dags {
		d := d
		go d.SyncLoop(loopCtx, syncInterval)
		g.Go(func() error {
			for r := 0; r < conf.Rounds; r++ {
				payload := make([]byte, conf.BatchSize)
				_, _ = rand.Read(payload)
				if _, err := d.CreateUnit(gctx, payload); err != nil {
					return errors.Wrapf(err, "%s", d.Name())
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	stopLoops()
	logger.Info("every participant created its units", "rounds", conf.Rounds, "time", time.Since(start))

	// complete every view, oldest round first
	for _, d := range dags {
		for r := 0; r < conf.Rounds; r++ {
			if err := d.Sync(ctx, uint64(r)); err != nil {
				return nil, err
			}
		}
	}
	for _, d := range dags {
		order, err := d.LinearOrder()
		if err != nil {
			return nil, errors.Wrapf(err, "order of %s", d.Name())
		}
		result.Orders[d.Name()] = order
		logger.Info("linear order", "node", d.Name(), "units", len(order))
	}
	reg.LogByzantineReports()
	result.Reports = reg.ByzantineReports()
	return result, nil
}
