/*
Package network provides what a chDAG needs from the outside world: the participant
registry with its quorum formula and Byzantine report log, and a message-passing peer
that requests rounds from a remote participant over the conn transport.
*/
package network

import (
	"math"
	"sort"
	"sync"

	"github.com/gitzhang10/alephdag/chdag"
	"github.com/hashicorp/go-hclog"
	"github.com/oklog/ulid/v2"
)

// Network is the participant registry shared by the chDAGs of one deployment.
type Network struct {
	lock         sync.RWMutex
	participants []chdag.Peer
	byzantine    map[string]map[string]ulid.ULID // reporter -> creator -> unit
	logger       hclog.Logger
}

// NewNetwork creates an empty registry.
func NewNetwork(logger hclog.Logger) *Network {
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:   "network",
			Output: hclog.DefaultOutput,
			Level:  hclog.DefaultLevel,
		})
	}
	return &Network{
		byzantine: make(map[string]map[string]ulid.ULID),
		logger:    logger,
	}
}

// Join registers a participant. A participant with the same name replaces the earlier one.
func (n *Network) Join(p chdag.Peer) {
	n.lock.Lock()
	defer n.lock.Unlock()
	for i, q := range n.participants {
		if q.Name() == p.Name() {
			n.participants[i] = p
			return
		}
	}
	n.participants = append(n.participants, p)
}

// Participants returns the registered participants.
func (n *Network) Participants() []chdag.Peer {
	n.lock.RLock()
	defer n.lock.RUnlock()
	return append([]chdag.Peer(nil), n.participants...)
}

// QuorumSize returns ceil(n - (n-1)/3), the Byzantine quorum for n = 3f+1 participants.
func (n *Network) QuorumSize(nodes int) int {
	return QuorumSize(nodes)
}

// QuorumSize returns ceil(n - (n-1)/3).
func QuorumSize(n int) int {
	return int(math.Ceil(float64(n) - float64(n-1)/3.0))
}

// ReportByzantine records that reporter found unit by creator inconsistent.
// A later report on the same creator by the same reporter replaces the earlier one.
func (n *Network) ReportByzantine(reporter, creator string, unit ulid.ULID) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if _, ok := n.byzantine[reporter]; !ok {
		n.byzantine[reporter] = make(map[string]ulid.ULID)
	}
	n.byzantine[reporter][creator] = unit
}

// ByzantineReports returns a copy of the report log.
func (n *Network) ByzantineReports() map[string]map[string]ulid.ULID {
	n.lock.RLock()
	defer n.lock.RUnlock()
	reports := make(map[string]map[string]ulid.ULID, len(n.byzantine))
	for reporter, byCreator := range n.byzantine {
		reports[reporter] = make(map[string]ulid.ULID, len(byCreator))
		for creator, unit := range byCreator {
			reports[reporter][creator] = unit
		}
	}
	return reports
}

// LogByzantineReports writes every report to the registry's logger, sorted by reporter and creator.
func (n *Network) LogByzantineReports() {
	reports := n.ByzantineReports()
	reporters := make([]string, 0, len(reports))
	for reporter := range reports {
		reporters = append(reporters, reporter)
	}
	sort.Strings(reporters)
	for _, reporter := range reporters {
		creators := make([]string, 0, len(reports[reporter]))
		for creator := range reports[reporter] {
			creators = append(creators, creator)
		}
		sort.Strings(creators)
		for _, creator := range creators {
			n.logger.Warn("byzantine report", "reporter", reporter, "creator", creator,
				"unit", reports[reporter][creator])
		}
	}
	if len(reporters) == 0 {
		n.logger.Info("no byzantine units were reported")
	}
}
