package conn

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	personLabel = iota
	addressLabel
)

type Person struct {
	Name string
	Age  int
}

type Address struct {
	Province string
	Town     string
	Code     int
}

var reflectedTypesMap = map[uint8]reflect.Type{
	personLabel:  reflect.TypeOf(Person{}),
	addressLabel: reflect.TypeOf(Address{}),
}

// serve answers every Person with their Address, and rejects anything else.
func serve(trans *NetworkTransport) {
	for rpc := range trans.RPCChan() {
		switch msg := rpc.Msg.(type) {
		case Person:
			rpc.Respond(Address{Province: "Hubei", Town: msg.Name, Code: msg.Age}, nil)
		default:
			rpc.Respond(Address{}, errors.New("unexpected request"))
		}
	}
}

// TestSimpleComm tests if node2 (client) can call node1 (server) correctly
// and if node1 can respond with a message of another type on the same connection.
func TestSimpleComm(t *testing.T) {
	addr1 := "127.0.0.1:8888"
	tran1, err := NewTCPTransport(addr1, 2*time.Second, nil, 1, reflectedTypesMap)
	require.NoError(t, err)
	defer tran1.Close()
	go serve(tran1)

	addr2 := "127.0.0.1:9999"
	tran2, err := NewTCPTransport(addr2, 2*time.Second, nil, 1, reflectedTypesMap)
	require.NoError(t, err)
	defer tran2.Close()

	person := Person{Name: "seafooler", Age: 18}
	for i := 0; i < 3; i++ {
		var addr Address
		err = tran2.Call(context.Background(), addr1, personLabel, &person, []byte("sig"), &addr)
		require.NoError(t, err)
		require.Equal(t, Address{Province: "Hubei", Town: "seafooler", Code: 18}, addr)
	}

	var addr Address
	err = tran2.Call(context.Background(), addr1, addressLabel, &Address{Town: "x"}, nil, &addr)
	require.EqualError(t, err, "unexpected request")
}

func TestCallAfterClose(t *testing.T) {
	tran, err := NewTCPTransport("127.0.0.1:8889", time.Second, nil, 1, reflectedTypesMap)
	require.NoError(t, err)
	require.NoError(t, tran.Close())
	require.True(t, tran.IsShutdown())

	var addr Address
	err = tran.Call(context.Background(), "127.0.0.1:8888", personLabel, &Person{}, nil, &addr)
	require.ErrorIs(t, err, ErrTransportShutdown)
}
