package minter

import (
	"errors"

	errs "crowdsale/core/errors"
)

var (
	errNilState  = errors.New("minter controller: state not configured")
	errNilSupply = errors.New("minter controller: supply not configured")
)

var (
	ErrNotAdmin        = errs.New(errs.ErrAuthorization, "minter: caller is not the admin")
	ErrNotMinter       = errs.New(errs.ErrAuthorization, "minter: caller is not the minter")
	ErrNotContract     = errs.New(errs.ErrValidation, "minter: address provided is not a contract")
	ErrPendingUpdate   = errs.New(errs.ErrTimelock, "minter: current update has to be executed")
	ErrNoPendingUpdate = errs.New(errs.ErrTimelock, "minter: no update launched")
	ErrAlreadyExecuted = errs.New(errs.ErrTimelock, "minter: update already executed")
	ErrGracePeriod     = errs.New(errs.ErrTimelock, "minter: grace period has not finished")
)
