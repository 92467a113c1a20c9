/*
Package chdag implements one participant's view of the round-structured DAG of units:
the round store, quorum-gated unit creation, pull-based synchronization with Byzantine
detection, head selection with a threshold-signature common coin, and the linear order.

A ChDAG is safe for concurrent use. All of its state is guarded by a single lock;
peers are only ever contacted while that lock is released.
*/
package chdag

import (
	"context"
	"sync"
	"time"

	"github.com/gitzhang10/alephdag/metrics"
	"github.com/gitzhang10/alephdag/sign"
	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

var (
	// ErrQuorumTimeout is returned by CreateUnit when the quorum wait is cancelled or times out.
	ErrQuorumTimeout = errors.New("timed out waiting for a quorum of units")
	// ErrRoundNotReached is returned when a round beyond the one being created is queried.
	ErrRoundNotReached = errors.New("round has not been reached")
	// ErrNoKeys is returned when the threshold key material is missing.
	ErrNoKeys = errors.New("threshold keys are required")
)

// MergePolicy decides what synchronization does with a unit that fails validation.
type MergePolicy int

const (
	// MergeInvalid reports the unit and still merges it, keeping the local view close to peers'.
	MergeInvalid MergePolicy = iota
	// RejectInvalid reports the unit and drops it.
	RejectInvalid
)

// Defaults applied by New for zero Config fields.
const (
	DefaultSyncLag        = 2
	DefaultSyncWindow     = 4
	DefaultPollInterval   = 50 * time.Millisecond
	DefaultShareCacheSize = 1024
)

// Config describes one participant's chDAG.
type Config struct {
	Name            string
	Registry        Registry
	SecretKey       *sign.SecretKey
	VerificationKey *sign.VerificationKey
	Logger          hclog.Logger
	Metrics         *metrics.Metrics

	SyncLag        uint64        // how many rounds behind the current one a unit must be before it is validated
	SyncWindow     uint64        // how many recent rounds the sync loop pulls
	PollInterval   time.Duration // re-sync period while waiting for a quorum
	QuorumTimeout  time.Duration // bound on a single quorum wait; 0 leaves it to the caller's context
	Policy         MergePolicy
	ShareCacheSize int
}

// ChDAG is a participant's local copy of the DAG.
type ChDAG struct {
	name     string
	registry Registry
	sk       *sign.SecretKey
	vk       *sign.VerificationKey
	logger   hclog.Logger
	metrics  *metrics.Metrics

	lock    sync.RWMutex
	store   *roundStore
	round   uint64           // round of the next local unit
	changed chan struct{}    // closed and replaced whenever the store grows
	heads   map[uint64]*Unit // decided heads by round

	createLock sync.Mutex

	orderLock      sync.Mutex
	order          []ulid.ULID
	ordered        map[ulid.ULID]bool
	nextOrderRound uint64

	shareCache *lru.Cache // unit id -> bool, result of share verification
	rejected   *lru.Cache // ids of units dropped under RejectInvalid

	syncLag       uint64
	syncWindow    uint64
	pollInterval  time.Duration
	quorumTimeout time.Duration
	policy        MergePolicy
}

// New creates an empty chDAG at round 0.
func New(conf *Config) (*ChDAG, error) {
	if conf.SecretKey == nil || conf.VerificationKey == nil {
		return nil, ErrNoKeys
	}
	if conf.Registry == nil {
		return nil, errors.New("a registry is required")
	}
	d := &ChDAG{
		name:          conf.Name,
		registry:      conf.Registry,
		sk:            conf.SecretKey,
		vk:            conf.VerificationKey,
		logger:        conf.Logger,
		metrics:       conf.Metrics,
		store:         newRoundStore(),
		changed:       make(chan struct{}),
		heads:         make(map[uint64]*Unit),
		ordered:       make(map[ulid.ULID]bool),
		syncLag:       conf.SyncLag,
		syncWindow:    conf.SyncWindow,
		pollInterval:  conf.PollInterval,
		quorumTimeout: conf.QuorumTimeout,
		policy:        conf.Policy,
	}
	if d.logger == nil {
		d.logger = hclog.New(&hclog.LoggerOptions{
			Name:   "chDAG-" + conf.Name,
			Output: hclog.DefaultOutput,
			Level:  hclog.DefaultLevel,
		})
	}
	if d.metrics == nil {
		d.metrics = metrics.NewUnregistered(conf.Name)
	}
	if d.syncLag == 0 {
		d.syncLag = DefaultSyncLag
	}
	if d.syncWindow == 0 {
		d.syncWindow = DefaultSyncWindow
	}
	if d.pollInterval <= 0 {
		d.pollInterval = DefaultPollInterval
	}
	size := conf.ShareCacheSize
	if size <= 0 {
		size = DefaultShareCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "create share cache")
	}
	d.shareCache = cache
	if d.rejected, err = lru.New(size); err != nil {
		return nil, errors.Wrap(err, "create rejected unit cache")
	}
	return d, nil
}

// Name implements Peer.
func (d *ChDAG) Name() string {
	return d.name
}

// Index implements Peer.
func (d *ChDAG) Index() int {
	return d.sk.Index()
}

// Round returns the round of the next unit this participant will create.
func (d *ChDAG) Round() uint64 {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.round
}

// RoundUnits implements Peer. The returned units are copies ordered by id.
func (d *ChDAG) RoundUnits(_ context.Context, round uint64) ([]*Unit, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	units := d.store.roundUnits(round)
	for i, u := range units {
		units[i] = u.Clone()
	}
	return units, nil
}

// RoundUnitCount implements Peer.
func (d *ChDAG) RoundUnitCount(_ context.Context, round uint64) (int, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.store.count(round), nil
}

// Unit looks a unit up by id.
func (d *ChDAG) Unit(id ulid.ULID) (*Unit, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.store.get(id)
}

func (d *ChDAG) quorum() int {
	return d.registry.QuorumSize(len(d.registry.Participants()))
}

// CreateUnit creates the next local unit carrying data. Round 0 units are created at once;
// later rounds wait, synchronizing in the meantime, until a quorum of units of the previous
// round is known. The wait ends with ErrQuorumTimeout when ctx is done or the configured
// quorum timeout expires.
func (d *ChDAG) CreateUnit(ctx context.Context, data []byte) (*Unit, error) {
	d.createLock.Lock()
	defer d.createLock.Unlock()

	round := d.Round()
	if round > 0 {
		if err := d.waitForQuorum(ctx, round-1); err != nil {
			return nil, err
		}
	}
	share, err := d.sk.GenerateShare(RoundMessage(round))
	if err != nil {
		return nil, errors.Wrapf(err, "generate share for round %d", round)
	}

	d.lock.Lock()
	unit := &Unit{
		ID:      ulid.Make(),
		Creator: d.name,
		Round:   round,
		Parents: d.getParentsLocked(round),
		Data:    data,
		Share:   share,
	}
	d.store.insert(unit)
	d.round++
	d.notifyLocked()
	d.lock.Unlock()

	d.metrics.UnitsCreated.Inc()
	d.metrics.Round.Set(float64(round + 1))
	d.logger.Debug("unit is created", "node", d.name, "round", round, "unit", unit.ID, "parents", len(unit.Parents))
	return unit, nil
}

// GetParents returns the parents a unit created now would reference.
func (d *ChDAG) GetParents() []ulid.ULID {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.getParentsLocked(d.round)
}

// getParentsLocked takes every unit of round-1, then walks back adding the most recent
// unit of each creator not yet represented, until a round adds nobody new.
func (d *ChDAG) getParentsLocked(round uint64) []ulid.ULID {
	if round == 0 {
		return nil
	}
	creators := make(map[string]bool)
	var parents []ulid.ULID
	for _, u := range d.store.roundUnits(round - 1) {
		creators[u.Creator] = true
		parents = append(parents, u.ID)
	}
	for r := round - 1; r > 0; r-- {
		added := 0
		for _, u := range d.store.roundUnits(r - 1) {
			if creators[u.Creator] {
				continue
			}
			creators[u.Creator] = true
			parents = append(parents, u.ID)
			added++
		}
		if added == 0 {
			break
		}
	}
	sortIDs(parents)
	return parents
}

// waitForQuorum blocks until round holds a quorum of units.
func (d *ChDAG) waitForQuorum(ctx context.Context, round uint64) error {
	quorum := d.quorum()
	if count, _ := d.countAndChanged(round); count >= quorum {
		return nil
	}
	if d.quorumTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.quorumTimeout)
		defer cancel()
	}

	start := time.Now()
	d.metrics.QuorumWaiting.Inc()
	defer func() {
		d.metrics.QuorumWaiting.Dec()
		d.metrics.QuorumWait.Observe(time.Since(start).Seconds())
	}()
	d.logger.Debug("waiting for a quorum", "node", d.name, "round", round, "quorum", quorum)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		if err := d.syncUpTo(ctx, round); err != nil && ctx.Err() == nil {
			d.logger.Warn("sync failed while waiting for a quorum", "node", d.name, "error", err)
		}
		count, changed := d.countAndChanged(round)
		if count >= quorum {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ErrQuorumTimeout, "round %d has %d of %d units: %v", round, count, quorum, ctx.Err())
		case <-changed:
		case <-ticker.C:
		}
	}
}

func (d *ChDAG) countAndChanged(round uint64) (int, <-chan struct{}) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.store.count(round), d.changed
}

// notifyLocked wakes everyone waiting for the store to grow.
func (d *ChDAG) notifyLocked() {
	close(d.changed)
	d.changed = make(chan struct{})
}
