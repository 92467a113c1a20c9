package sign

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/pkg/errors"
)

// GenED25519Keys creates a fresh ED25519 key pair for message authentication.
func GenED25519Keys() (ed25519.PrivateKey, ed25519.PublicKey) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return privateKey, publicKey
}

// SignEd25519 signs msg with the private key.
func SignEd25519(privateKey ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(privateKey, msg)
}

// VerifySignEd25519 checks sig over msg. An error is returned only for malformed input.
func VerifySignEd25519(publicKey ed25519.PublicKey, msg []byte, sig []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, errors.Errorf("bad ED25519 public key length %d", len(publicKey))
	}
	if len(sig) != ed25519.SignatureSize {
		return false, errors.Errorf("bad ED25519 signature length %d", len(sig))
	}
	return ed25519.Verify(publicKey, msg, sig), nil
}
