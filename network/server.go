package network

import (
	"context"
	"crypto/ed25519"

	"github.com/gitzhang10/alephdag/chdag"
	"github.com/gitzhang10/alephdag/conn"
	"github.com/gitzhang10/alephdag/sign"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// Server answers RoundRequests from the participants in publicKeyMap with the local chDAG.
type Server struct {
	local        chdag.Peer
	trans        *conn.NetworkTransport
	publicKeyMap map[string]ed25519.PublicKey
	logger       hclog.Logger
}

// NewServer creates a server for local. The transport must be built with ReflectedTypesMap.
func NewServer(local chdag.Peer, trans *conn.NetworkTransport, publicKeyMap map[string]ed25519.PublicKey,
	logger hclog.Logger) *Server {
	return &Server{
		local:        local,
		trans:        trans,
		publicKeyMap: publicKeyMap,
		logger:       logger,
	}
}

// Serve handles requests until ctx is done.
func (s *Server) Serve(ctx context.Context) {
	rpcCh := s.trans.RPCChan()
	for {
		select {
		case <-ctx.Done():
			return
		case rpc := <-rpcCh:
			s.handle(ctx, rpc)
		}
	}
}

func (s *Server) handle(ctx context.Context, rpc conn.RPC) {
	req, ok := rpc.Msg.(RoundRequest)
	if !ok {
		rpc.Respond(RoundResponse{}, errors.Errorf("unknown request %T", rpc.Msg))
		return
	}
	if !s.verifySigED25519(req.Requester, req, rpc.Sig) {
		s.logger.Error("fail to verify the request's signature", "round", req.Round, "sender", req.Requester)
		rpc.Respond(RoundResponse{Round: req.Round}, errors.New("request is not authenticated"))
		return
	}

	resp := RoundResponse{Round: req.Round}
	if req.CountOnly {
		count, err := s.local.RoundUnitCount(ctx, req.Round)
		resp.Count = count
		rpc.Respond(resp, err)
		return
	}
	units, err := s.local.RoundUnits(ctx, req.Round)
	if err != nil {
		rpc.Respond(resp, err)
		return
	}
	resp.Count = len(units)
	resp.Units = make([]chdag.WireUnit, 0, len(units))
	for _, u := range units {
		w, err := u.Wire()
		if err != nil {
			rpc.Respond(RoundResponse{Round: req.Round}, err)
			return
		}
		resp.Units = append(resp.Units, w)
	}
	rpc.Respond(resp, nil)
}

func (s *Server) verifySigED25519(peer string, data interface{}, sig []byte) bool {
	pubKey, ok := s.publicKeyMap[peer]
	if !ok {
		s.logger.Error("node is unknown", "node", peer)
		return false
	}
	dataAsBytes, err := encode(data)
	if err != nil {
		s.logger.Error("fail to encode the data", "error", err)
		return false
	}
	ok, err = sign.VerifySignEd25519(pubKey, dataAsBytes, sig)
	if err != nil {
		s.logger.Error("fail to verify the ED25519 signature", "error", err)
		return false
	}
	return ok
}
