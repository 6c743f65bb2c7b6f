package sale

import (
	"math/big"

	"github.com/holiman/uint256"
)

// RateScale is the fixed-point denominator of the exchange rate.
var RateScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

var percentScale = uint256.NewInt(100)

// mulDiv returns floor(a*b/d) computed with a 512-bit intermediate. Negative
// inputs and results wider than 256 bits are rejected.
func mulDiv(a, b *big.Int, d *uint256.Int) (*big.Int, error) {
	if a == nil || b == nil || a.Sign() < 0 || b.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	x, overflow := uint256.FromBig(a)
	if overflow {
		return nil, ErrAmountOverflow
	}
	y, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrAmountOverflow
	}
	if d.IsZero() {
		return big.NewInt(0), nil
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return z.ToBig(), nil
}

// TokenAmount converts a payment value into sold tokens: value*rate/10^18.
func TokenAmount(value, rate *big.Int) (*big.Int, error) {
	scale, _ := uint256.FromBig(RateScale)
	return mulDiv(value, rate, scale)
}

// ReferralBonus returns floor(tokens*percentage/100).
func ReferralBonus(tokens *big.Int, percentage uint64) (*big.Int, error) {
	return mulDiv(tokens, new(big.Int).SetUint64(percentage), percentScale)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
