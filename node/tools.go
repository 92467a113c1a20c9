package node

import (
	"math/rand"
)

// generate a transaction with s bytes
func generateTX(s int) []byte {
	trans := make([]byte, s)
	for i := range trans {
		trans[i] = byte(rand.Intn(200))
	}
	return trans
}
