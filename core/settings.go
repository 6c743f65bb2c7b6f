package core

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	errs "crowdsale/core/errors"
	"crowdsale/native/sale"
)

var (
	ErrUnknownSetting = errs.New(errs.ErrValidation, "core: unknown sale setting")
	ErrInvalidValue   = errs.New(errs.ErrValidation, "core: invalid setting value")
)

// SettingFields lists the fields accepted by Configure.
var SettingFields = []string{
	sale.FieldToken,
	sale.FieldWallet,
	sale.FieldSaleStart,
	sale.FieldSaleEnd,
	sale.FieldWithdrawalStart,
	sale.FieldWithdrawPeriodDuration,
	sale.FieldWithdrawPeriodNumber,
	sale.FieldMinBuyValue,
	sale.FieldMaxTokenAmountPerAddress,
	sale.FieldExchangeRate,
	sale.FieldReferralRewardPercentage,
	sale.FieldAmountToSell,
}

func applySetting(engine *sale.Engine, caller common.Address, field, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case sale.FieldToken, sale.FieldWallet:
		addr, err := ParseAddress(value)
		if err != nil {
			return err
		}
		if field == sale.FieldToken {
			return engine.SetToken(caller, addr)
		}
		return engine.SetWallet(caller, addr)
	case sale.FieldSaleStart, sale.FieldSaleEnd, sale.FieldWithdrawalStart, sale.FieldWithdrawPeriodDuration:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
		}
		switch field {
		case sale.FieldSaleStart:
			return engine.SetSaleStart(caller, v)
		case sale.FieldSaleEnd:
			return engine.SetSaleEnd(caller, v)
		case sale.FieldWithdrawalStart:
			return engine.SetWithdrawalStart(caller, v)
		default:
			return engine.SetWithdrawPeriodDuration(caller, v)
		}
	case sale.FieldWithdrawPeriodNumber, sale.FieldReferralRewardPercentage:
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
		}
		if field == sale.FieldWithdrawPeriodNumber {
			return engine.SetWithdrawPeriodNumber(caller, v)
		}
		return engine.SetReferralRewardPercentage(caller, v)
	case sale.FieldMinBuyValue, sale.FieldMaxTokenAmountPerAddress, sale.FieldExchangeRate, sale.FieldAmountToSell:
		v, err := ParseAmount(value)
		if err != nil {
			return err
		}
		switch field {
		case sale.FieldMinBuyValue:
			return engine.SetMinBuyValue(caller, v)
		case sale.FieldMaxTokenAmountPerAddress:
			return engine.SetMaxTokenAmountPerAddress(caller, v)
		case sale.FieldExchangeRate:
			return engine.SetExchangeRate(caller, v)
		default:
			return engine.SetAmountToSell(caller, v)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, field)
	}
}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: malformed address %q", ErrInvalidValue, value)
	}
	return common.HexToAddress(value), nil
}

// ParseAmount parses a non-negative base-10 integer amount.
func ParseAmount(value string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: malformed amount %q", ErrInvalidValue, value)
	}
	return v, nil
}
