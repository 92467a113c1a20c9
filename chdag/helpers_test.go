package chdag

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gitzhang10/alephdag/sign"
	"github.com/hashicorp/go-hclog"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

// testRegistry is an in-process registry; the network package cannot be imported here.
type testRegistry struct {
	lock         sync.Mutex
	participants []Peer
	reports      map[string]map[string]ulid.ULID
	reportCount  int
}

func newTestRegistry() *testRegistry {
	return &testRegistry{reports: make(map[string]map[string]ulid.ULID)}
}

func (r *testRegistry) join(p Peer) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.participants = append(r.participants, p)
}

func (r *testRegistry) Participants() []Peer {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Peer(nil), r.participants...)
}

func (r *testRegistry) QuorumSize(n int) int {
	return n - (n-1)/3
}

func (r *testRegistry) ReportByzantine(reporter, creator string, unit ulid.ULID) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.reports[reporter] == nil {
		r.reports[reporter] = make(map[string]ulid.ULID)
	}
	r.reports[reporter][creator] = unit
	r.reportCount++
}

func (r *testRegistry) reported(reporter, creator string) (ulid.ULID, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	id, ok := r.reports[reporter][creator]
	return id, ok
}

func (r *testRegistry) count() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.reportCount
}

// stubPeer stands for a participant whose units are inserted by hand.
type stubPeer struct {
	name  string
	index int
}

func (p stubPeer) Name() string { return p.name }
func (p stubPeer) Index() int   { return p.index }
func (p stubPeer) RoundUnits(context.Context, uint64) ([]*Unit, error) {
	return nil, nil
}
func (p stubPeer) RoundUnitCount(context.Context, uint64) (int, error) {
	return 0, nil
}

// setupCluster creates n in-process participants node0..node(n-1) sharing one registry,
// with a threshold equal to the quorum.
func setupCluster(t *testing.T, n int, policy MergePolicy) ([]*ChDAG, *testRegistry) {
	reg := newTestRegistry()
	vk, sks, err := sign.GenerateKeys(reg.QuorumSize(n), n)
	require.NoError(t, err)
	dags := make([]*ChDAG, n)
	for i := 0; i < n; i++ {
		dags[i], err = New(&Config{
			Name:            fmt.Sprintf("node%d", i),
			Registry:        reg,
			SecretKey:       sks[i],
			VerificationKey: vk,
			Logger:          hclog.NewNullLogger(),
			PollInterval:    5 * time.Millisecond,
			Policy:          policy,
		})
		require.NoError(t, err)
		reg.join(dags[i])
	}
	return dags, reg
}

// setupManual creates participant A of a four-party registry A..D whose other members
// are stubs, and returns the secret keys of all four so units can be forged by hand.
func setupManual(t *testing.T, policy MergePolicy) (*ChDAG, *testRegistry, []*sign.SecretKey) {
	reg := newTestRegistry()
	vk, sks, err := sign.GenerateKeys(3, 4)
	require.NoError(t, err)
	d, err := New(&Config{
		Name:            "A",
		Registry:        reg,
		SecretKey:       sks[0],
		VerificationKey: vk,
		Logger:          hclog.NewNullLogger(),
		Policy:          policy,
	})
	require.NoError(t, err)
	reg.join(d)
	for i, name := range []string{"B", "C", "D"} {
		reg.join(stubPeer{name: name, index: i + 2})
	}
	return d, reg, sks
}

// newUnit builds a unit with a share from sk over its round, or no share when sk is nil.
func newUnit(t *testing.T, sk *sign.SecretKey, creator string, round uint64, parents ...ulid.ULID) *Unit {
	u := &Unit{
		ID:      ulid.Make(),
		Creator: creator,
		Round:   round,
		Parents: append([]ulid.ULID(nil), parents...),
	}
	sortIDs(u.Parents)
	if sk != nil {
		share, err := sk.GenerateShare(RoundMessage(round))
		require.NoError(t, err)
		u.Share = share
	}
	return u
}

// insertUnits puts units straight into d's store.
func insertUnits(d *ChDAG, units ...*Unit) {
	d.lock.Lock()
	defer d.lock.Unlock()
	for _, u := range units {
		d.store.insert(u)
	}
	d.notifyLocked()
}

func setRound(d *ChDAG, round uint64) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.round = round
}

func ids(units ...*Unit) []ulid.ULID {
	out := make([]ulid.ULID, len(units))
	for i, u := range units {
		out[i] = u.ID
	}
	return out
}

// createRound lets every participant create its next unit, in order.
func createRound(t *testing.T, ctx context.Context, dags []*ChDAG) {
	for _, d := range dags {
		_, err := d.CreateUnit(ctx, []byte(d.Name()))
		require.NoError(t, err)
	}
}

// syncAll makes every participant pull rounds 0..round-1 from the others.
func syncAll(t *testing.T, ctx context.Context, dags []*ChDAG, round uint64) {
	for _, d := range dags {
		for r := uint64(0); r < round; r++ {
			require.NoError(t, d.Sync(ctx, r))
		}
	}
}
