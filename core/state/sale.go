package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/native/sale"
)

var (
	saleConfigKey       = []byte("sale/config")
	saleSoldKey         = []byte("sale/sold")
	saleCurrencyListKey = []byte("sale/currencies")
	saleCurrencyPrefix  = "sale/currency/"
	salePurchaserPrefix = "sale/purchaser/"
)

type storedSaleConfig struct {
	Token                    common.Address
	Wallet                   common.Address
	SaleStart                uint64
	SaleEnd                  uint64
	WithdrawalStart          uint64
	WithdrawPeriodDuration   uint64
	WithdrawPeriodNumber     uint64
	MinBuyValue              *big.Int
	MaxTokenAmountPerAddress *big.Int
	ExchangeRate             *big.Int
	ReferralRewardPercentage uint64
	AmountToSell             *big.Int
}

type storedPurchaser struct {
	Claimable *big.Int
	Withdrawn *big.Int
}

func toUint64(name string, v int64) (uint64, error) {
	if v < 0 {
		return 0, fmt.Errorf("state: %s must not be negative", name)
	}
	return uint64(v), nil
}

func newStoredSaleConfig(cfg *sale.Config) (*storedSaleConfig, error) {
	stored := &storedSaleConfig{
		Token:                    cfg.Token,
		Wallet:                   cfg.Wallet,
		WithdrawPeriodNumber:     cfg.WithdrawPeriodNumber,
		MinBuyValue:              cloneBigInt(cfg.MinBuyValue),
		MaxTokenAmountPerAddress: cloneBigInt(cfg.MaxTokenAmountPerAddress),
		ExchangeRate:             cloneBigInt(cfg.ExchangeRate),
		ReferralRewardPercentage: cfg.ReferralRewardPercentage,
		AmountToSell:             cloneBigInt(cfg.AmountToSell),
	}
	var err error
	if stored.SaleStart, err = toUint64("sale start", cfg.SaleStart); err != nil {
		return nil, err
	}
	if stored.SaleEnd, err = toUint64("sale end", cfg.SaleEnd); err != nil {
		return nil, err
	}
	if stored.WithdrawalStart, err = toUint64("withdrawal start", cfg.WithdrawalStart); err != nil {
		return nil, err
	}
	if stored.WithdrawPeriodDuration, err = toUint64("withdraw period duration", cfg.WithdrawPeriodDuration); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *storedSaleConfig) config() *sale.Config {
	return &sale.Config{
		Token:                    s.Token,
		Wallet:                   s.Wallet,
		SaleStart:                int64(s.SaleStart),
		SaleEnd:                  int64(s.SaleEnd),
		WithdrawalStart:          int64(s.WithdrawalStart),
		WithdrawPeriodDuration:   int64(s.WithdrawPeriodDuration),
		WithdrawPeriodNumber:     s.WithdrawPeriodNumber,
		MinBuyValue:              cloneBigInt(s.MinBuyValue),
		MaxTokenAmountPerAddress: cloneBigInt(s.MaxTokenAmountPerAddress),
		ExchangeRate:             cloneBigInt(s.ExchangeRate),
		ReferralRewardPercentage: s.ReferralRewardPercentage,
		AmountToSell:             cloneBigInt(s.AmountToSell),
	}
}

// SaleConfig returns the installed sale configuration.
func (tx *Tx) SaleConfig() (*sale.Config, bool, error) {
	stored := new(storedSaleConfig)
	ok, err := tx.KVGet(saleConfigKey, stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.config(), true, nil
}

// SalePutConfig replaces the sale configuration.
func (tx *Tx) SalePutConfig(cfg *sale.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil sale config")
	}
	stored, err := newStoredSaleConfig(cfg)
	if err != nil {
		return err
	}
	return tx.KVPut(saleConfigKey, stored)
}

// SaleSoldAmount returns the aggregate sold counter.
func (tx *Tx) SaleSoldAmount() (*big.Int, error) {
	sold := new(big.Int)
	ok, err := tx.KVGet(saleSoldKey, sold)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return sold, nil
}

// SaleSetSoldAmount overwrites the aggregate sold counter.
func (tx *Tx) SaleSetSoldAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: sold amount must not be negative")
	}
	return tx.KVPut(saleSoldKey, amount)
}

// SalePurchaser returns the record of addr.
func (tx *Tx) SalePurchaser(addr common.Address) (*sale.PurchaserRecord, bool, error) {
	stored := new(storedPurchaser)
	ok, err := tx.KVGet(prefixedKey(salePurchaserPrefix, addr.Bytes()), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &sale.PurchaserRecord{Claimable: cloneBigInt(stored.Claimable), Withdrawn: cloneBigInt(stored.Withdrawn)}, true, nil
}

// SalePutPurchaser stores the record of addr.
func (tx *Tx) SalePutPurchaser(addr common.Address, record *sale.PurchaserRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil purchaser record")
	}
	stored := &storedPurchaser{Claimable: cloneBigInt(record.Claimable), Withdrawn: cloneBigInt(record.Withdrawn)}
	return tx.KVPut(prefixedKey(salePurchaserPrefix, addr.Bytes()), stored)
}

// SaleCurrencyAuthorized reports allow-list membership.
func (tx *Tx) SaleCurrencyAuthorized(asset common.Address) (bool, error) {
	var flag bool
	ok, err := tx.KVGet(prefixedKey(saleCurrencyPrefix, asset.Bytes()), &flag)
	if err != nil {
		return false, err
	}
	return ok && flag, nil
}

// SaleAuthorizeCurrency appends asset to the allow-list.
func (tx *Tx) SaleAuthorizeCurrency(asset common.Address) error {
	authorized, err := tx.SaleCurrencyAuthorized(asset)
	if err != nil || authorized {
		return err
	}
	list, err := tx.SaleCurrencies()
	if err != nil {
		return err
	}
	list = append(list, asset)
	if err := tx.KVPut(saleCurrencyListKey, list); err != nil {
		return err
	}
	return tx.KVPut(prefixedKey(saleCurrencyPrefix, asset.Bytes()), true)
}

// SaleCurrencies lists the allow-list in authorization order.
func (tx *Tx) SaleCurrencies() ([]common.Address, error) {
	var list []common.Address
	if _, err := tx.KVGet(saleCurrencyListKey, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []common.Address{}
	}
	return list, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
