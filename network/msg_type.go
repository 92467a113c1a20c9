package network

import (
	"reflect"

	"github.com/gitzhang10/alephdag/chdag"
)

const (
	RoundRequestTag uint8 = iota
)

// RoundRequest asks a peer for its units, or only their count, of one round.
type RoundRequest struct {
	Requester string
	Round     uint64
	CountOnly bool
}

// RoundResponse answers a RoundRequest.
type RoundResponse struct {
	Round uint64
	Count int
	Units []chdag.WireUnit
}

var reflectedTypesMap = map[uint8]reflect.Type{
	RoundRequestTag: reflect.TypeOf(RoundRequest{}),
}

// ReflectedTypesMap returns the request types a Server accepts, for building its transport.
func ReflectedTypesMap() map[uint8]reflect.Type {
	return reflectedTypesMap
}
