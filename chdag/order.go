package chdag

import (
	"github.com/gitzhang10/alephdag/metrics"
	"github.com/gitzhang10/alephdag/sign"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

// ChooseHead picks the head of round. Round r can be decided once the participant has moved
// past round r+1. The first candidate, in id order, referenced by a quorum of round r+1 units
// is the head. Failing that, once a quorum of round r+1 units is known their shares are
// combined into the common coin, whose bit selects the first or the last referenced candidate.
// ok is false when no decision is possible yet; the caller retries as units arrive.
// Asking for a round past the one being created is an error.
// A decided head is remembered and returned by every later call.
func (d *ChDAG) ChooseHead(round uint64) (*Unit, bool, error) {
	d.lock.RLock()
	if head, ok := d.heads[round]; ok {
		d.lock.RUnlock()
		return head, true, nil
	}
	if round > d.round {
		current := d.round
		d.lock.RUnlock()
		return nil, false, errors.Wrapf(ErrRoundNotReached, "round %d, current round %d", round, current)
	}
	if round+2 > d.round {
		d.lock.RUnlock()
		return nil, false, nil
	}
	candidates := d.store.roundUnits(round)
	backers := d.store.roundUnits(round + 1)
	d.lock.RUnlock()

	quorum := d.quorum()
	head, rule, err := d.decideHead(round, candidates, backers, quorum)
	if err != nil || head == nil {
		return nil, false, err
	}

	d.lock.Lock()
	if prev, ok := d.heads[round]; ok {
		d.lock.Unlock()
		return prev, true, nil
	}
	d.heads[round] = head
	d.lock.Unlock()

	d.metrics.HeadsDecided.WithLabelValues(rule).Inc()
	d.logger.Info("head is chosen", "node", d.name, "round", round, "head", head.ID,
		"creator", head.Creator, "rule", rule)
	return head, true, nil
}

func (d *ChDAG) decideHead(round uint64, candidates, backers []*Unit, quorum int) (*Unit, string, error) {
	if len(candidates) == 0 {
		return nil, "", nil
	}
	votes := make(map[ulid.ULID]int)
	for _, b := range backers {
		for _, p := range b.uniqueParents() {
			votes[p]++
		}
	}
	for _, c := range candidates {
		if votes[c.ID] >= quorum {
			return c, metrics.RuleTiming, nil
		}
	}

	if len(backers) < quorum {
		return nil, "", nil
	}
	shares := d.backerShares(round+1, backers)
	if len(shares) < quorum {
		return nil, "", nil
	}
	sig, err := d.vk.CombineShares(shares)
	if err != nil {
		return nil, "", errors.Wrapf(err, "combine the shares of round %d", round+1)
	}
	if !d.vk.VerifySignature(sig, RoundMessage(round+1)) {
		d.logger.Debug("combined signature does not verify", "node", d.name, "round", round+1)
		return nil, "", nil
	}
	bit, err := sign.SecretBit(sig)
	if err != nil {
		return nil, "", errors.Wrapf(err, "derive the coin of round %d", round+1)
	}

	var referenced []*Unit
	for _, c := range candidates {
		if votes[c.ID] > 0 {
			referenced = append(referenced, c)
		}
	}
	if len(referenced) == 0 {
		return nil, "", nil
	}
	if bit == 0 {
		return referenced[0], metrics.RuleCoin, nil
	}
	return referenced[len(referenced)-1], metrics.RuleCoin, nil
}

// backerShares collects one verified share per creator among the units of round.
// A unit whose share does not verify is reported the first time it is checked.
func (d *ChDAG) backerShares(round uint64, backers []*Unit) map[int]sign.Share {
	indices := make(map[string]int)
	for _, p := range d.registry.Participants() {
		indices[p.Name()] = p.Index()
	}
	msg := RoundMessage(round)
	shares := make(map[int]sign.Share)
	for _, b := range backers {
		index, ok := indices[b.Creator]
		if !ok {
			continue
		}
		if _, ok := shares[index]; ok {
			continue
		}
		valid, cached := d.shareValid(b, index, msg)
		if !valid {
			if !cached {
				d.lock.Lock()
				d.reportLocked(b, "signature share does not verify")
				d.lock.Unlock()
			}
			continue
		}
		shares[index] = b.Share
	}
	return shares
}

func (d *ChDAG) shareValid(u *Unit, index int, msg []byte) (valid bool, cached bool) {
	if v, ok := d.shareCache.Get(u.ID); ok {
		return v.(bool), true
	}
	valid = d.vk.VerifyShare(u.Share, index, msg)
	d.shareCache.Add(u.ID, valid)
	return valid, false
}

// LinearOrder extends the local total order with every round that can now be decided,
// in increasing round order, and returns the order so far. For each head, its parents not
// yet ordered come first in id order, then the head. Earlier entries never change.
func (d *ChDAG) LinearOrder() ([]ulid.ULID, error) {
	d.orderLock.Lock()
	defer d.orderLock.Unlock()
	for {
		head, ok, err := d.ChooseHead(d.nextOrderRound)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		parents := append([]ulid.ULID(nil), head.Parents...)
		sortIDs(parents)
		for _, p := range parents {
			d.appendOrder(p)
		}
		d.appendOrder(head.ID)
		d.nextOrderRound++
	}
	return append([]ulid.ULID(nil), d.order...), nil
}

func (d *ChDAG) appendOrder(id ulid.ULID) {
	if d.ordered[id] {
		return
	}
	d.ordered[id] = true
	d.order = append(d.order, id)
}
