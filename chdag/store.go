package chdag

import (
	"github.com/google/btree"
	"github.com/oklog/ulid/v2"
)

const treeDegree = 8

// roundStore maps rounds to the units known for them, ordered by unit id.
// It is not safe for concurrent use; the owning ChDAG guards it.
type roundStore struct {
	rounds map[uint64]*btree.BTreeG[*Unit]
	units  map[ulid.ULID]*Unit
}

func newRoundStore() *roundStore {
	return &roundStore{
		rounds: make(map[uint64]*btree.BTreeG[*Unit]),
		units:  make(map[ulid.ULID]*Unit),
	}
}

// insert adds u unless a unit with the same id is known. It reports whether u was added.
func (s *roundStore) insert(u *Unit) bool {
	if _, ok := s.units[u.ID]; ok {
		return false
	}
	tree, ok := s.rounds[u.Round]
	if !ok {
		tree = btree.NewG(treeDegree, unitLess)
		s.rounds[u.Round] = tree
	}
	tree.ReplaceOrInsert(u)
	s.units[u.ID] = u
	return true
}

func (s *roundStore) get(id ulid.ULID) (*Unit, bool) {
	u, ok := s.units[id]
	return u, ok
}

// inRound reports whether the unit id is stored under round.
func (s *roundStore) inRound(round uint64, id ulid.ULID) bool {
	u, ok := s.units[id]
	return ok && u.Round == round
}

func (s *roundStore) count(round uint64) int {
	tree, ok := s.rounds[round]
	if !ok {
		return 0
	}
	return tree.Len()
}

// roundUnits returns the units of round in id order.
func (s *roundStore) roundUnits(round uint64) []*Unit {
	tree, ok := s.rounds[round]
	if !ok {
		return nil
	}
	units := make([]*Unit, 0, tree.Len())
	tree.Ascend(func(u *Unit) bool {
		units = append(units, u)
		return true
	})
	return units
}
