package sale

import (
	"math/big"
	"testing"
)

func TestScheduleWithdrawableAtPeriodBoundaries(t *testing.T) {
	schedule := Schedule{Start: 1_000, PeriodDuration: 60, PeriodCount: 7}
	claimable := big.NewInt(1_000_003)
	for k := int64(0); k <= 10; k++ {
		now := schedule.Start + k*schedule.PeriodDuration
		got := schedule.Withdrawable(now, claimable)
		periods := k
		if periods > 7 {
			periods = 7
		}
		want := new(big.Int).Mul(claimable, big.NewInt(periods))
		want.Quo(want, big.NewInt(7))
		if got.Cmp(want) != 0 {
			t.Fatalf("period %d: got %s want %s", k, got, want)
		}
	}
	if got := schedule.Withdrawable(schedule.Start+7*60, claimable); got.Cmp(claimable) != 0 {
		t.Fatalf("full vesting must release the exact claimable amount, got %s", got)
	}
}

func TestScheduleWithdrawableMonotonic(t *testing.T) {
	schedule := Schedule{Start: 500, PeriodDuration: 13, PeriodCount: 9}
	claimable := big.NewInt(997)
	prev := big.NewInt(0)
	for now := int64(0); now < 1_000; now++ {
		got := schedule.Withdrawable(now, claimable)
		if got.Cmp(prev) < 0 {
			t.Fatalf("withdrawable decreased at %d: %s < %s", now, got, prev)
		}
		if got.Cmp(claimable) > 0 {
			t.Fatalf("withdrawable above claimable at %d", now)
		}
		prev = got
	}
	if prev.Cmp(claimable) != 0 {
		t.Fatalf("expected full release, got %s", prev)
	}
}

func TestScheduleBeforeStart(t *testing.T) {
	schedule := Schedule{Start: 100, PeriodDuration: 10, PeriodCount: 2}
	if got := schedule.Withdrawable(99, big.NewInt(10)); got.Sign() != 0 {
		t.Fatalf("expected nothing before start, got %s", got)
	}
	if got := schedule.ElapsedPeriods(99); got != 0 {
		t.Fatalf("expected zero periods, got %d", got)
	}
	if got := schedule.Withdrawable(200, nil); got.Sign() != 0 {
		t.Fatalf("expected zero for nil claimable, got %s", got)
	}
}

func TestScheduleHugeClaimable(t *testing.T) {
	schedule := Schedule{Start: 0, PeriodDuration: 1, PeriodCount: 3}
	claimable := new(big.Int).Lsh(big.NewInt(1), 300)
	want := new(big.Int).Quo(claimable, big.NewInt(3))
	if got := schedule.Withdrawable(1, claimable); got.Cmp(want) != 0 {
		t.Fatalf("got %s want %s", got, want)
	}
}
