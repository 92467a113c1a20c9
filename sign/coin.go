package sign

import (
	"crypto/sha256"
)

// SecretBit derives the common-coin bit from a combined signature: the parity of
// the last byte of sha256 over the signature encoding. Everyone holding the same
// signature derives the same bit, and nobody can predict it before t shares exist.
func SecretBit(sig Signature) (byte, error) {
	digest, err := signatureDigest(sig)
	if err != nil {
		return 0, err
	}
	return digest[len(digest)-1] & 1, nil
}

func signatureDigest(sig Signature) ([]byte, error) {
	raw, err := sig.MarshalBinary()
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(raw)
	return digest[:], nil
}
