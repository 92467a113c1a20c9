/*
Package sign implements the (t,n) threshold signature scheme backing the common coin,
together with the ED25519 helpers used to authenticate messages between nodes.

Shares live in G1 of the bn256 pairing group, verification keys in G2. A share of party i
over message m is sk_i*H(m); it is checked with e(H(m), vk_i) == e(share, g2). Any t shares
combined with Lagrange coefficients at zero yield sk*H(m), checked against the group key.
Party indices are 1-based; index 0 is the evaluation point of the group secret.
*/
package sign

import (
	"math/big"
	"sort"

	"github.com/pkg/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/mod"
	"go.dedis.ch/kyber/v3/pairing"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/util/random"
)

var (
	// ErrInvalidThreshold is returned when t is not in [1, n].
	ErrInvalidThreshold = errors.New("threshold must be between 1 and the number of parties")
	// ErrInvalidIndex is returned for a party index outside [1, n].
	ErrInvalidIndex = errors.New("party index out of range")
	// ErrHashToCurve is returned when the suite cannot map messages onto G1.
	ErrHashToCurve = errors.New("G1 does not support hashing to the curve")
)

var suite = pairing.NewSuiteBn256()

// Order returns the order of the bn256 groups; all scalars are reduced modulo it.
func Order() *big.Int {
	return new(big.Int).Set(bn256.Order)
}

type hashablePoint interface {
	Hash([]byte) kyber.Point
}

// Share is a signature share: a G1 point produced by one party.
type Share = kyber.Point

// Signature is a combined threshold signature in G1.
type Signature = kyber.Point

// SecretKey is the polynomial evaluation owned by one party. It is never transmitted.
type SecretKey struct {
	index  int
	secret kyber.Scalar
}

// Index returns the 1-based party index of the key.
func (sk *SecretKey) Index() int {
	return sk.index
}

// VerificationKey holds the group public key and the per-party public keys.
// It is immutable once generated.
type VerificationKey struct {
	threshold int
	public    kyber.Point
	publics   []kyber.Point
}

// Threshold returns t, the number of shares needed for a signature.
func (vk *VerificationKey) Threshold() int {
	return vk.threshold
}

// Parties returns n.
func (vk *VerificationKey) Parties() int {
	return len(vk.publics)
}

// GenerateKeys acts as the trusted dealer: it draws t random coefficients (the last one is the
// group secret), evaluates the polynomial at 1..n and derives the verification keys.
func GenerateKeys(threshold, parties int) (*VerificationKey, []*SecretKey, error) {
	if threshold < 1 || threshold > parties {
		return nil, nil, ErrInvalidThreshold
	}
	rand := random.New()
	coefficients := make([]kyber.Scalar, threshold)
	for c := range coefficients {
		coefficients[c] = suite.G2().Scalar().Pick(rand)
	}
	secret := coefficients[threshold-1]

	sks := make([]*SecretKey, parties)
	publics := make([]kyber.Point, parties)
	for i := 1; i <= parties; i++ {
		sk := evaluatePolynomial(coefficients, i)
		sks[i-1] = &SecretKey{index: i, secret: sk}
		publics[i-1] = suite.G2().Point().Mul(sk, nil)
	}
	vk := &VerificationKey{
		threshold: threshold,
		public:    suite.G2().Point().Mul(secret, nil),
		publics:   publics,
	}
	return vk, sks, nil
}

// evaluatePolynomial runs Horner's rule; coefficients[len-1] is the constant term.
func evaluatePolynomial(coefficients []kyber.Scalar, x int) kyber.Scalar {
	xs := suite.G2().Scalar().SetInt64(int64(x))
	result := suite.G2().Scalar().Zero()
	for _, coef := range coefficients {
		result = suite.G2().Scalar().Add(suite.G2().Scalar().Mul(result, xs), coef)
	}
	return result
}

// HashMessage maps msg onto G1.
func HashMessage(msg []byte) (kyber.Point, error) {
	hashable, ok := suite.G1().Point().(hashablePoint)
	if !ok {
		return nil, ErrHashToCurve
	}
	return hashable.Hash(msg), nil
}

// GenerateShare signs msg with the party's secret share.
func (sk *SecretKey) GenerateShare(msg []byte) (Share, error) {
	hm, err := HashMessage(msg)
	if err != nil {
		return nil, err
	}
	return suite.G1().Point().Mul(sk.secret, hm), nil
}

// VerifyShare reports whether share was produced by party index over msg.
func (vk *VerificationKey) VerifyShare(share Share, index int, msg []byte) bool {
	if share == nil || index < 1 || index > len(vk.publics) {
		return false
	}
	return vk.pairsEqual(share, vk.publics[index-1], msg)
}

// VerifySignature reports whether sig is the group signature over msg.
func (vk *VerificationKey) VerifySignature(sig Signature, msg []byte) bool {
	if sig == nil {
		return false
	}
	return vk.pairsEqual(sig, vk.public, msg)
}

// pairsEqual checks e(H(msg), public) == e(point, g2).
func (vk *VerificationKey) pairsEqual(point kyber.Point, public kyber.Point, msg []byte) bool {
	hm, err := HashMessage(msg)
	if err != nil {
		return false
	}
	left := suite.Pair(hm, public)
	right := suite.Pair(point, suite.G2().Point().Base())
	return left.Equal(right)
}

// CombineShares interpolates the shares at zero. The caller supplies at least t shares from
// distinct valid indices; with fewer the result is a point that fails VerifySignature.
// An error means the index set itself is malformed.
func (vk *VerificationKey) CombineShares(shares map[int]Share) (Signature, error) {
	indices := make([]int, 0, len(shares))
	for i := range shares {
		if i < 1 || i > len(vk.publics) {
			return nil, errors.Wrapf(ErrInvalidIndex, "index %d", i)
		}
		indices = append(indices, i)
	}
	sort.Ints(indices)

	sig := suite.G1().Point().Null()
	for _, i := range indices {
		coef, err := lagrangeCoefficient(i, indices, bn256.Order)
		if err != nil {
			return nil, err
		}
		weighted := suite.G1().Point().Mul(mod.NewInt(coef, bn256.Order), shares[i])
		sig = suite.G1().Point().Add(sig, weighted)
	}
	return sig, nil
}
