package chdag

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Peer is the read side of another participant's chDAG. In-process it is the ChDAG
// itself; across machines it is a client that requests rounds over the network.
type Peer interface {
	// Name identifies the participant; units carry it as their creator.
	Name() string
	// Index is the participant's 1-based threshold-key index.
	Index() int
	// RoundUnits returns the units the peer holds for round. They must not be modified.
	RoundUnits(ctx context.Context, round uint64) ([]*Unit, error)
	// RoundUnitCount returns how many units the peer holds for round.
	RoundUnitCount(ctx context.Context, round uint64) (int, error)
}

// Registry is the membership the chDAG consults: who participates, how large a quorum
// is, and where provable misbehavior is reported.
type Registry interface {
	Participants() []Peer
	QuorumSize(n int) int
	ReportByzantine(reporter, creator string, unit ulid.ULID)
}
