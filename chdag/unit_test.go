package chdag

import (
	"testing"

	"github.com/gitzhang10/alephdag/sign"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestWireUnit(t *testing.T) {
	_, sks, err := sign.GenerateKeys(2, 3)
	require.NoError(t, err)
	u := newUnit(t, sks[1], "node1", 4, ulid.Make(), ulid.Make())
	u.Data = []byte("batch")

	w, err := u.Wire()
	require.NoError(t, err)
	got, err := UnitFromWire(w)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, u.Creator, got.Creator)
	require.Equal(t, u.Round, got.Round)
	require.Equal(t, u.Parents, got.Parents)
	require.Equal(t, u.Data, got.Data)
	require.True(t, u.Share.Equal(got.Share))
}

func TestUnitFromWireRejectsGarbage(t *testing.T) {
	_, err := UnitFromWire(WireUnit{ID: []byte{1, 2, 3}})
	require.Error(t, err)

	id := ulid.Make()
	_, err = UnitFromWire(WireUnit{ID: id.Bytes(), Parents: [][]byte{{9}}})
	require.Error(t, err)

	_, err = UnitFromWire(WireUnit{ID: id.Bytes(), Share: []byte("not a point")})
	require.Error(t, err)

	u, err := UnitFromWire(WireUnit{ID: id.Bytes()})
	require.NoError(t, err)
	require.Nil(t, u.Share)
}

func TestRoundMessageDistinct(t *testing.T) {
	require.NotEqual(t, RoundMessage(1), RoundMessage(2))
	require.Equal(t, RoundMessage(3), RoundMessage(3))
}

func TestUniqueParents(t *testing.T) {
	a, b := ulid.Make(), ulid.Make()
	u := &Unit{Parents: []ulid.ULID{a, b, a}}
	require.Equal(t, []ulid.ULID{a, b}, u.uniqueParents())
	require.True(t, u.HasParent(b))
	require.False(t, u.HasParent(ulid.Make()))
}
