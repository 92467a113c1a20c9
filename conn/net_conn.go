/*
Package conn implements the connection between a pair of nodes.
A connection is dialed by the requesting node and carries request/response pairs:
the requester writes a typed, signed request and then reads the response on the same stream.
To make the connection more usable, it is encapsulated with a buffered reader/writer and msgpack codecs.
*/
package conn

import (
	"bufio"
	"net"

	"github.com/hashicorp/go-msgpack/codec"
)

// NetConn represents a connection established from one node to another.
type NetConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

// Release closes the connection in a NetConn variable.
func (n *NetConn) Release() error {
	return n.conn.Close()
}
