package crypto

import (
	"fmt"
	"math/big"
)

// FactorizePQ splits pq, the product of two distinct primes of at most 63
// bits each, into its two factors using Pollard's rho algorithm. This is
// the one step of the AuthKey exchange (§4.3 step 2) where the server
// deliberately hands the client cheap work: pq is small enough that rho
// converges in milliseconds, but forces the client to prove it bothered.
func FactorizePQ(pq uint64) (p, q uint64, err error) {
	if pq < 2 {
		return 0, 0, fmt.Errorf("crypto: pq=%d is not factorizable", pq)
	}

	if pq%2 == 0 {
		return 2, pq / 2, nil
	}

	n := new(big.Int).SetUint64(pq)

	factor := pollardRho(n)
	if factor == nil || factor.Cmp(n) == 0 || factor.Sign() == 0 {
		return 0, 0, fmt.Errorf("crypto: failed to factorize %d", pq)
	}

	other := new(big.Int).Div(n, factor)

	p, q = factor.Uint64(), other.Uint64()
	if p > q {
		p, q = q, p
	}

	return p, q, nil
}

func pollardRho(n *big.Int) *big.Int {
	if n.Bit(0) == 0 {
		return big.NewInt(2)
	}

	one := big.NewInt(1)

	for c := int64(1); c < 64; c++ {
		cc := big.NewInt(c)
		f := func(x *big.Int) *big.Int {
			x2 := new(big.Int).Mul(x, x)
			x2.Add(x2, cc)
			return x2.Mod(x2, n)
		}

		x, y, d := big.NewInt(2), big.NewInt(2), big.NewInt(1)

		for i := 0; i < 5_000_000 && d.Cmp(one) == 0; i++ {
			x = f(x)
			y = f(f(y))

			diff := new(big.Int).Sub(x, y)
			diff.Abs(diff)

			if diff.Sign() == 0 {
				break
			}

			d = new(big.Int).GCD(nil, nil, diff, n)
		}

		if d.Cmp(one) != 0 && d.Cmp(n) != 0 {
			return d
		}
	}

	return nil
}
