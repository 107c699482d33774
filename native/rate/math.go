package rate

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	basisPoints = big.NewInt(10_000)
	ray         = mustBigInt("1000000000000000000000000000") // 1e27 precision
	halfRay     = new(big.Int).Rsh(ray, 1)

	ray256     = uint256.MustFromBig(ray)
	halfRay256 = uint256.MustFromBig(halfRay)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// Ray returns a fresh copy of the 1e27 fixed-point unit.
func Ray() *big.Int { return new(big.Int).Set(ray) }

// RayMul multiplies two ray values rounding half up.
func RayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, ray)
	return product
}

// RayDiv divides a by b in ray precision rounding half up.
func RayDiv(a, b *big.Int) *big.Int {
	if a == nil || b == nil || b.Sign() == 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Mul(a, ray)
	numerator.Add(numerator, new(big.Int).Rsh(b, 1))
	numerator.Quo(numerator, b)
	return numerator
}

// MulDiv returns floor(a*b/c). A zero or nil divisor yields zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// ApplyBps scales amount by bps/10000, rounding down.
func ApplyBps(amount *big.Int, bps uint64) *big.Int {
	return MulDiv(amount, new(big.Int).SetUint64(bps), basisPoints)
}

// Rpow raises a ray-denominated base to n using exponentiation by squaring.
// The 256-bit path covers every realistic per-second rate; an intermediate
// overflow falls back to arbitrary precision with identical rounding.
func Rpow(x *big.Int, n uint64) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	if out, ok := rpow256(x, n); ok {
		return out
	}
	return rpowBig(x, n)
}

func rpow256(x *big.Int, n uint64) (*big.Int, bool) {
	base, overflow := uint256.FromBig(x)
	if overflow {
		return nil, false
	}
	z := new(uint256.Int).Set(ray256)
	if n%2 == 1 {
		z.Set(base)
	}
	for n /= 2; n > 0; n /= 2 {
		next, ok := rayMul256(base, base)
		if !ok {
			return nil, false
		}
		base = next
		if n%2 == 1 {
			if z, ok = rayMul256(z, base); !ok {
				return nil, false
			}
		}
	}
	return z.ToBig(), true
}

func rayMul256(a, b *uint256.Int) (*uint256.Int, bool) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, false
	}
	if _, overflow = product.AddOverflow(product, halfRay256); overflow {
		return nil, false
	}
	return product.Div(product, ray256), true
}

func rpowBig(x *big.Int, n uint64) *big.Int {
	base := new(big.Int).Set(x)
	z := new(big.Int).Set(ray)
	if n%2 == 1 {
		z.Set(base)
	}
	for n /= 2; n > 0; n /= 2 {
		base = RayMul(base, base)
		if n%2 == 1 {
			z = RayMul(z, base)
		}
	}
	return z
}
