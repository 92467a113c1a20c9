package network

import (
	"bytes"

	"github.com/hashicorp/go-msgpack/codec"
)

// encode encodes the data into the bytes that are signed and verified.
// Data can be of any type.
func encode(data interface{}) ([]byte, error) {
	buf := bytes.Buffer{}
	enc := codec.NewEncoder(&buf, &codec.MsgpackHandle{})
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
