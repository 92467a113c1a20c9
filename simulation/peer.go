package simulation

import (
	"context"
	"time"

	"github.com/gitzhang10/alephdag/chdag"
)

// simPeer is how the other participants see one in-process chDAG: every request pays the
// simulated latency, and a faulty participant withholds its units until they are old enough
// to be validated, then serves them with all parents but one stripped.
type simPeer struct {
	dag     *chdag.ChDAG
	latency time.Duration
	faulty  bool
	lag     uint64
}

func (p *simPeer) Name() string {
	return p.dag.Name()
}

func (p *simPeer) Index() int {
	return p.dag.Index()
}

func (p *simPeer) RoundUnits(ctx context.Context, round uint64) ([]*chdag.Unit, error) {
	if err := p.delay(ctx); err != nil {
		return nil, err
	}
	units, err := p.dag.RoundUnits(ctx, round)
	if err != nil || !p.faulty {
		return units, err
	}
	out := units[:0]
	for _, u := range units {
		if u.Creator != p.dag.Name() {
			out = append(out, u)
			continue
		}
		if p.dag.Round() <= round+p.lag+1 {
			continue
		}
		if len(u.Parents) > 1 {
			u.Parents = u.Parents[:1]
		}
		out = append(out, u)
	}
	return out, nil
}

func (p *simPeer) RoundUnitCount(ctx context.Context, round uint64) (int, error) {
	units, err := p.RoundUnits(ctx, round)
	return len(units), err
}

func (p *simPeer) delay(ctx context.Context) error {
	if p.latency <= 0 {
		return nil
	}
	timer := time.NewTimer(p.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
