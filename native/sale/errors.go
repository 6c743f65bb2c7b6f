package sale

import (
	"errors"

	errs "crowdsale/core/errors"
)

var (
	errNilState    = errors.New("sale engine: state not configured")
	errNilAssets   = errors.New("sale engine: asset resolver not configured")
	errNilConfig   = errors.New("sale engine: sale not configured")
	errNilCustody  = errors.New("sale engine: custody account not configured")
	errNotBurnable = errors.New("sale engine: sold asset does not support burning")
)

var (
	ErrNotAdmin    = errs.New(errs.ErrAuthorization, "sale: caller is not the admin")
	ErrReentrant   = errs.New(errs.ErrAuthorization, "sale: reentrant call")
	ErrStarted     = errs.New(errs.ErrPhase, "sale: sale already started")
	ErrNotStarted  = errs.New(errs.ErrPhase, "sale: sale not started yet")
	ErrEnded       = errs.New(errs.ErrPhase, "sale: sale ended")
	ErrNotEnded    = errs.New(errs.ErrPhase, "sale: sale not ended yet")
	ErrBeforeCliff = errs.New(errs.ErrPhase, "sale: withdrawal not started yet")

	ErrUnauthorizedCurrency = errs.New(errs.ErrValidation, "sale: unauthorized token")
	ErrUnderMinimum         = errs.New(errs.ErrValidation, "sale: under minimum buy value")
	ErrSupplyExhausted      = errs.New(errs.ErrValidation, "sale: not enough tokens available")
	ErrAboveAddressCap      = errs.New(errs.ErrValidation, "sale: above maximum token amount per address")
	ErrInvalidReferral      = errs.New(errs.ErrValidation, "sale: invalid referral address")
	ErrInvalidAmount        = errs.New(errs.ErrValidation, "sale: amount must not be negative")
	ErrAmountOverflow       = errs.New(errs.ErrValidation, "sale: amount overflows 256 bits")
	ErrInvalidConfig        = errs.New(errs.ErrValidation, "sale: invalid configuration")
	ErrZeroCurrency         = errs.New(errs.ErrValidation, "sale: currency must not be the zero address")
	ErrOverWithdrawal       = errs.New(errs.ErrValidation, "sale: withdrawal exceeds claimable amount")
)
