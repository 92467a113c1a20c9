package sign

import (
	"math/big"

	"github.com/pkg/errors"
)

// ErrNotInvertible is returned when a Lagrange denominator shares a factor with the group order.
var ErrNotInvertible = errors.New("denominator is not invertible modulo the group order")

// lagrangeCoefficient computes L_i = prod_{j in set, j != i} (0 - j) / (i - j) mod order.
func lagrangeCoefficient(i int, set []int, order *big.Int) (*big.Int, error) {
	num := big.NewInt(1)
	den := big.NewInt(1)
	for _, j := range set {
		if j == i {
			continue
		}
		num.Mul(num, big.NewInt(int64(-j)))
		num.Mod(num, order)
		den.Mul(den, big.NewInt(int64(i-j)))
		den.Mod(den, order)
	}
	inv, err := modInverse(den, order)
	if err != nil {
		return nil, errors.Wrapf(err, "lagrange coefficient of index %d", i)
	}
	num.Mul(num, inv)
	return num.Mod(num, order), nil
}

// modInverse returns a^-1 mod m using the extended Euclidean algorithm.
// a is brought into [0, m) first, so negative inputs are accepted.
func modInverse(a, m *big.Int) (*big.Int, error) {
	r0 := new(big.Int).Mod(a, m)
	r1 := new(big.Int).Set(m)
	s0 := big.NewInt(1)
	s1 := big.NewInt(0)
	q := new(big.Int)
	tmp := new(big.Int)
	for r1.Sign() != 0 {
		q.Quo(r0, r1)
		tmp.Mul(q, r1)
		r0, r1 = r1, new(big.Int).Sub(r0, tmp)
		tmp.Mul(q, s1)
		s0, s1 = s1, new(big.Int).Sub(s0, tmp)
	}
	if r0.Cmp(big.NewInt(1)) != 0 {
		return nil, ErrNotInvertible
	}
	return s0.Mod(s0, m), nil
}
