package sale

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxReferralRewardPercentage bounds the referral bonus.
const MaxReferralRewardPercentage = 100

// Config captures the sale parameters. Timestamps are unix seconds.
type Config struct {
	Token                    common.Address
	Wallet                   common.Address
	SaleStart                int64
	SaleEnd                  int64
	WithdrawalStart          int64
	WithdrawPeriodDuration   int64
	WithdrawPeriodNumber     uint64
	MinBuyValue              *big.Int
	MaxTokenAmountPerAddress *big.Int
	ExchangeRate             *big.Int
	ReferralRewardPercentage uint64
	AmountToSell             *big.Int
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.MinBuyValue = cloneBigInt(c.MinBuyValue)
	clone.MaxTokenAmountPerAddress = cloneBigInt(c.MaxTokenAmountPerAddress)
	clone.ExchangeRate = cloneBigInt(c.ExchangeRate)
	clone.AmountToSell = cloneBigInt(c.AmountToSell)
	return &clone
}

// Validate checks the structural invariants of the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: missing configuration", ErrInvalidConfig)
	}
	if c.Token == (common.Address{}) {
		return fmt.Errorf("%w: sold asset must be set", ErrInvalidConfig)
	}
	if c.Wallet == (common.Address{}) {
		return fmt.Errorf("%w: wallet must be set", ErrInvalidConfig)
	}
	if c.SaleStart < 0 || c.SaleEnd < 0 || c.WithdrawalStart < 0 {
		return fmt.Errorf("%w: timestamps must not be negative", ErrInvalidConfig)
	}
	if c.SaleStart > c.SaleEnd {
		return fmt.Errorf("%w: sale start after sale end", ErrInvalidConfig)
	}
	if c.WithdrawPeriodDuration <= 0 {
		return fmt.Errorf("%w: withdraw period duration must be positive", ErrInvalidConfig)
	}
	if c.WithdrawPeriodNumber == 0 {
		return fmt.Errorf("%w: withdraw period number must be positive", ErrInvalidConfig)
	}
	if c.ReferralRewardPercentage > MaxReferralRewardPercentage {
		return fmt.Errorf("%w: referral reward percentage above 100", ErrInvalidConfig)
	}
	for name, v := range map[string]*big.Int{
		"minimum buy value":          c.MinBuyValue,
		"maximum amount per address": c.MaxTokenAmountPerAddress,
		"exchange rate":              c.ExchangeRate,
		"amount to sell":             c.AmountToSell,
	} {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Schedule returns the vesting schedule derived from the configuration.
func (c *Config) Schedule() Schedule {
	return Schedule{
		Start:          c.WithdrawalStart,
		PeriodDuration: c.WithdrawPeriodDuration,
		PeriodCount:    c.WithdrawPeriodNumber,
	}
}

// Settings is the read snapshot of the sale: configuration plus sold amount.
type Settings struct {
	Config
	SoldAmount *big.Int
}

// PurchaserRecord tracks the entitlement of a single address.
type PurchaserRecord struct {
	Claimable *big.Int
	Withdrawn *big.Int
}

// Clone returns a deep copy of the record.
func (r *PurchaserRecord) Clone() *PurchaserRecord {
	if r == nil {
		return &PurchaserRecord{Claimable: big.NewInt(0), Withdrawn: big.NewInt(0)}
	}
	return &PurchaserRecord{Claimable: cloneBigInt(r.Claimable), Withdrawn: cloneBigInt(r.Withdrawn)}
}
