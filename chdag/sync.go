package chdag

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"
)

// Sync pulls the units of round from every other participant and merges the ones not
// known locally. It is best effort: a peer that fails to answer is skipped, and calling
// Sync again is always safe. The only error returned is the context's.
func (d *ChDAG) Sync(ctx context.Context, round uint64) error {
	participants := d.registry.Participants()
	if count, _ := d.countAndChanged(round); count >= len(participants) {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range participants {
		if p.Name() == d.name {
			continue
		}
		peer := p
		g.Go(func() error {
			units, err := peer.RoundUnits(gctx, round)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.logger.Debug("fail to pull the round from a peer", "node", d.name, "peer", peer.Name(),
					"round", round, "error", err)
				return nil
			}
			d.merge(round, units)
			return nil
		})
	}
	return g.Wait()
}

// syncUpTo syncs the window of rounds ending at round, oldest first so that parents
// are known by the time their children are validated.
func (d *ChDAG) syncUpTo(ctx context.Context, round uint64) error {
	var from uint64
	if round+1 > d.syncWindow {
		from = round + 1 - d.syncWindow
	}
	for r := from; r <= round; r++ {
		if err := d.Sync(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// SyncLoop keeps pulling the rounds below the current one until ctx is done.
func (d *ChDAG) SyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		round := d.Round()
		if round > 0 {
			if err := d.syncUpTo(ctx, round-1); err != nil && ctx.Err() == nil {
				d.logger.Warn("background sync failed", "node", d.name, "error", err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// merge inserts the unknown units of round. Units old enough to be judged are validated
// first; a failing unit is reported and, under MergeInvalid, merged all the same. Under
// RejectInvalid its id is remembered so later pulls skip it without reporting it again.
func (d *ChDAG) merge(round uint64, units []*Unit) int {
	d.lock.Lock()
	defer d.lock.Unlock()
	merged := 0
	for _, u := range units {
		if u == nil {
			continue
		}
		if u.Round != round {
			d.logger.Debug("peer returned a unit of another round", "node", d.name, "unit", u.ID,
				"round", u.Round, "requested", round)
			continue
		}
		if _, ok := d.store.get(u.ID); ok || d.rejected.Contains(u.ID) {
			continue
		}
		if u.Round > 0 && d.round > u.Round+d.syncLag && !d.isValidLocked(u) {
			d.reportLocked(u, "unit does not reference a quorum of confirmed parents")
			if d.policy == RejectInvalid {
				d.rejected.Add(u.ID, struct{}{})
				continue
			}
		}
		d.store.insert(u)
		merged++
	}
	if merged > 0 {
		d.notifyLocked()
		d.metrics.UnitsMerged.Add(float64(merged))
	}
	return merged
}

func (d *ChDAG) reportLocked(u *Unit, reason string) {
	d.registry.ReportByzantine(d.name, u.Creator, u.ID)
	d.metrics.ByzantineReports.Inc()
	d.logger.Warn("byzantine unit detected", "reporter", d.name, "creator", u.Creator, "unit", u.ID,
		"round", u.Round, "reason", reason)
}

// IsValid reports whether u is consistent with the local view: a unit past round 0 must have
// a quorum of parents, each either stored in the previous round or already referenced by
// another unit of u's round. It cannot prove a unit valid, only catch provable violations.
func (d *ChDAG) IsValid(u *Unit) bool {
	d.lock.RLock()
	defer d.lock.RUnlock()
	return d.isValidLocked(u)
}

func (d *ChDAG) isValidLocked(u *Unit) bool {
	if u.Round == 0 {
		return true
	}
	parents := u.uniqueParents()
	if len(parents) == 0 {
		return false
	}
	siblings := d.store.roundUnits(u.Round)
	confirmed := 0
	for _, p := range parents {
		if d.store.inRound(u.Round-1, p) || vouched(siblings, u, p) {
			confirmed++
		}
	}
	return confirmed >= d.quorum()
}

// vouched reports whether a unit other than u lists parent.
func vouched(siblings []*Unit, u *Unit, parent ulid.ULID) bool {
	for _, s := range siblings {
		if s.ID != u.ID && s.HasParent(parent) {
			return true
		}
	}
	return false
}
