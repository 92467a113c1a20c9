package network

import (
	"context"
	"crypto/ed25519"

	"github.com/gitzhang10/alephdag/chdag"
	"github.com/gitzhang10/alephdag/conn"
	"github.com/gitzhang10/alephdag/sign"
	"github.com/pkg/errors"
)

// RemotePeer reads another participant's chDAG by sending it signed RoundRequests.
type RemotePeer struct {
	name       string
	index      int
	addr       string
	requester  string
	privateKey ed25519.PrivateKey
	trans      *conn.NetworkTransport
}

// NewRemotePeer creates a peer for the participant name listening on addr. Requests are
// sent on behalf of requester and signed with its key.
func NewRemotePeer(name string, index int, addr string, requester string, privateKey ed25519.PrivateKey,
	trans *conn.NetworkTransport) *RemotePeer {
	return &RemotePeer{
		name:       name,
		index:      index,
		addr:       addr,
		requester:  requester,
		privateKey: privateKey,
		trans:      trans,
	}
}

// Name implements chdag.Peer.
func (p *RemotePeer) Name() string {
	return p.name
}

// Index implements chdag.Peer.
func (p *RemotePeer) Index() int {
	return p.index
}

// Addr returns the address requests are sent to.
func (p *RemotePeer) Addr() string {
	return p.addr
}

// RoundUnits implements chdag.Peer.
func (p *RemotePeer) RoundUnits(ctx context.Context, round uint64) ([]*chdag.Unit, error) {
	resp, err := p.request(ctx, round, false)
	if err != nil {
		return nil, err
	}
	units := make([]*chdag.Unit, 0, len(resp.Units))
	for _, w := range resp.Units {
		u, err := chdag.UnitFromWire(w)
		if err != nil {
			return nil, errors.Wrapf(err, "unit from %s", p.name)
		}
		units = append(units, u)
	}
	return units, nil
}

// RoundUnitCount implements chdag.Peer.
func (p *RemotePeer) RoundUnitCount(ctx context.Context, round uint64) (int, error) {
	resp, err := p.request(ctx, round, true)
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (p *RemotePeer) request(ctx context.Context, round uint64, countOnly bool) (*RoundResponse, error) {
	req := RoundRequest{
		Requester: p.requester,
		Round:     round,
		CountOnly: countOnly,
	}
	data, err := encode(req)
	if err != nil {
		return nil, err
	}
	sig := sign.SignEd25519(p.privateKey, data)
	var resp RoundResponse
	if err := p.trans.Call(ctx, p.addr, RoundRequestTag, &req, sig, &resp); err != nil {
		return nil, errors.Wrapf(err, "request round %d from %s", round, p.name)
	}
	if resp.Round != round {
		return nil, errors.Errorf("%s answered round %d instead of %d", p.name, resp.Round, round)
	}
	return &resp, nil
}
