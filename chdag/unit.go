package chdag

import (
	"encoding/binary"
	"sort"

	"github.com/gitzhang10/alephdag/sign"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

// Unit is a vertex of the chDAG. It is immutable once it leaves its creator.
type Unit struct {
	ID      ulid.ULID
	Creator string
	Round   uint64
	Parents []ulid.ULID // sorted by id; empty only in round 0
	Data    []byte
	Share   sign.Share // the creator's share over RoundMessage(Round)
}

// Clone returns a copy that does not share slices with u. The share point is shared,
// points are never mutated after creation.
func (u *Unit) Clone() *Unit {
	c := *u
	c.Parents = append([]ulid.ULID(nil), u.Parents...)
	c.Data = append([]byte(nil), u.Data...)
	return &c
}

// HasParent reports whether id is among the unit's parents.
func (u *Unit) HasParent(id ulid.ULID) bool {
	for _, p := range u.Parents {
		if p == id {
			return true
		}
	}
	return false
}

// uniqueParents drops repeated parent ids a misbehaving creator may have declared.
func (u *Unit) uniqueParents() []ulid.ULID {
	seen := make(map[ulid.ULID]struct{}, len(u.Parents))
	out := make([]ulid.ULID, 0, len(u.Parents))
	for _, p := range u.Parents {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func sortIDs(ids []ulid.ULID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
}

func unitLess(a, b *Unit) bool {
	return a.ID.Compare(b.ID) < 0
}

// RoundMessage is the message every unit of round signs a share over.
func RoundMessage(round uint64) []byte {
	msg := make([]byte, 0, len("alephdag-round")+8)
	msg = append(msg, "alephdag-round"...)
	return binary.BigEndian.AppendUint64(msg, round)
}

// WireUnit is the transport form of a Unit: id, creator, round, parents, share, payload.
type WireUnit struct {
	ID      []byte
	Creator string
	Round   uint64
	Parents [][]byte
	Share   []byte
	Data    []byte
}

// Wire converts u to its transport form.
func (u *Unit) Wire() (WireUnit, error) {
	share, err := sign.EncodeShare(u.Share)
	if err != nil {
		return WireUnit{}, errors.Wrapf(err, "encode share of unit %s", u.ID)
	}
	w := WireUnit{
		ID:      u.ID.Bytes(),
		Creator: u.Creator,
		Round:   u.Round,
		Parents: make([][]byte, len(u.Parents)),
		Share:   share,
		Data:    u.Data,
	}
	for i, p := range u.Parents {
		w.Parents[i] = p.Bytes()
	}
	return w, nil
}

// UnitFromWire rebuilds a Unit received from a peer.
func UnitFromWire(w WireUnit) (*Unit, error) {
	var u Unit
	if err := u.ID.UnmarshalBinary(w.ID); err != nil {
		return nil, errors.Wrap(err, "decode unit id")
	}
	u.Creator = w.Creator
	u.Round = w.Round
	u.Data = w.Data
	u.Parents = make([]ulid.ULID, len(w.Parents))
	for i, raw := range w.Parents {
		if err := u.Parents[i].UnmarshalBinary(raw); err != nil {
			return nil, errors.Wrapf(err, "decode parent %d of unit %s", i, u.ID)
		}
	}
	share, err := sign.DecodeShare(w.Share)
	if err != nil {
		return nil, errors.Wrapf(err, "decode share of unit %s", u.ID)
	}
	u.Share = share
	return &u, nil
}
