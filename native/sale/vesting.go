package sale

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Schedule releases an entitlement in PeriodCount equal steps, one per
// elapsed PeriodDuration after Start.
type Schedule struct {
	Start          int64
	PeriodDuration int64
	PeriodCount    uint64
}

// ElapsedPeriods returns floor((now-Start)/PeriodDuration) clamped to
// [0, PeriodCount].
func (s Schedule) ElapsedPeriods(now int64) uint64 {
	if now < s.Start {
		return 0
	}
	if s.PeriodDuration <= 0 {
		return s.PeriodCount
	}
	elapsed := uint64((now - s.Start) / s.PeriodDuration)
	if elapsed > s.PeriodCount {
		return s.PeriodCount
	}
	return elapsed
}

// Withdrawable returns the part of claimable unlocked at now. Partial steps
// truncate, so the result never exceeds the exact linear share.
func (s Schedule) Withdrawable(now int64, claimable *big.Int) *big.Int {
	if claimable == nil || claimable.Sign() <= 0 || now < s.Start {
		return big.NewInt(0)
	}
	elapsed := s.ElapsedPeriods(now)
	if elapsed >= s.PeriodCount {
		return new(big.Int).Set(claimable)
	}
	vested, err := mulDiv(claimable, new(big.Int).SetUint64(elapsed), uint256.NewInt(s.PeriodCount))
	if err != nil {
		// claimable wider than 256 bits; fall back to arbitrary precision.
		vested = new(big.Int).Mul(claimable, new(big.Int).SetUint64(elapsed))
		vested.Quo(vested, new(big.Int).SetUint64(s.PeriodCount))
	}
	return vested
}
