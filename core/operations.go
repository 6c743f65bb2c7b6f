package core

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/core/state"
	"crowdsale/native/minter"
	"crowdsale/native/sale"
	"crowdsale/native/token"
)

const (
	OpConfigure           = "configure"
	OpAuthorizeCurrencies = "authorize_currencies"
	OpBuyToken            = "buy_token"
	OpWithdrawToken       = "withdraw_token"
	OpBurnRemaining       = "burn_remaining_tokens"
	OpLaunchUpdate        = "launch_minter_update"
	OpExecuteUpdate       = "execute_minter_update"
	OpMint                = "mint_from_controller"
	OpBurn                = "burn_from_controller"
	OpTransfer            = "transfer"
	OpApprove             = "approve"
	OpRegisterContract    = "register_contract"
)

// Configure applies one admin setter. field is one of the sale.Field*
// constants and value its textual form.
func (r *Runtime) Configure(caller common.Address, field, value string) error {
	return r.update(OpConfigure, func(*state.Tx) error {
		return applySetting(r.sale, caller, field, value)
	})
}

// AuthorizePaymentCurrencies extends the payment allow-list.
func (r *Runtime) AuthorizePaymentCurrencies(caller common.Address, assets []common.Address) error {
	return r.update(OpAuthorizeCurrencies, func(*state.Tx) error {
		return r.sale.AuthorizePaymentCurrencies(caller, assets)
	})
}

// BuyToken purchases tokens with value of currency.
func (r *Runtime) BuyToken(buyer, currency common.Address, value *big.Int, referral common.Address) (*big.Int, error) {
	var tokens *big.Int
	err := r.update(OpBuyToken, func(*state.Tx) error {
		var err error
		tokens, err = r.sale.BuyToken(buyer, currency, value, referral)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.observeAmount(OpBuyToken, currency, value)
	return tokens, nil
}

// WithdrawToken releases the caller's vested tokens.
func (r *Runtime) WithdrawToken(caller common.Address) (*big.Int, error) {
	var paid *big.Int
	err := r.update(OpWithdrawToken, func(*state.Tx) error {
		var err error
		paid, err = r.sale.WithdrawToken(caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.observeAmount(OpWithdrawToken, r.deployment.Token, paid)
	return paid, nil
}

// BurnRemainingTokens burns the custody balance of the sold asset.
func (r *Runtime) BurnRemainingTokens(caller common.Address) (*big.Int, error) {
	var burned *big.Int
	err := r.update(OpBurnRemaining, func(*state.Tx) error {
		var err error
		burned, err = r.sale.BurnRemainingTokens(caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.observeAmount(OpBurnRemaining, r.deployment.Token, burned)
	return burned, nil
}

// LaunchUpdate announces a new minter for the sold asset.
func (r *Runtime) LaunchUpdate(caller, newMinter common.Address) (*minter.PendingUpdate, error) {
	var pending *minter.PendingUpdate
	err := r.update(OpLaunchUpdate, func(*state.Tx) error {
		var err error
		pending, err = r.minter.LaunchUpdate(caller, newMinter)
		return err
	})
	return pending, err
}

// ExecuteUpdate activates the announced minter.
func (r *Runtime) ExecuteUpdate(caller common.Address) (common.Address, error) {
	var current common.Address
	err := r.update(OpExecuteUpdate, func(*state.Tx) error {
		var err error
		current, err = r.minter.ExecuteUpdate(caller)
		return err
	})
	return current, err
}

// MintFromController mints the sold asset on behalf of the current minter.
func (r *Runtime) MintFromController(caller, to common.Address, amount *big.Int) error {
	err := r.update(OpMint, func(*state.Tx) error {
		return r.minter.MintFromController(caller, to, amount)
	})
	if err == nil {
		r.observeAmount(OpMint, r.deployment.Token, amount)
	}
	return err
}

// BurnFromController burns the sold asset on behalf of the current minter.
func (r *Runtime) BurnFromController(caller, holder common.Address, amount *big.Int) error {
	err := r.update(OpBurn, func(*state.Tx) error {
		return r.minter.BurnFromController(caller, holder, amount)
	})
	if err == nil {
		r.observeAmount(OpBurn, r.deployment.Token, amount)
	}
	return err
}

// Transfer moves amount of asset between accounts.
func (r *Runtime) Transfer(from, asset, to common.Address, amount *big.Int) error {
	return r.update(OpTransfer, func(tx *state.Tx) error {
		ledger, err := assetResolver{tx: tx}.ledger(asset)
		if err != nil {
			return err
		}
		return ledger.Transfer(from, to, amount)
	})
}

// Approve sets the allowance of spender over owner's asset balance.
func (r *Runtime) Approve(owner, asset, spender common.Address, amount *big.Int) error {
	return r.update(OpApprove, func(tx *state.Tx) error {
		ledger, err := assetResolver{tx: tx}.ledger(asset)
		if err != nil {
			return err
		}
		return ledger.Approve(owner, spender, amount)
	})
}

// RegisterContract marks addr as a code-bearing identity, making it eligible
// as a minter.
func (r *Runtime) RegisterContract(caller, addr common.Address) error {
	return r.update(OpRegisterContract, func(tx *state.Tx) error {
		if err := r.requireAdmin(caller); err != nil {
			return err
		}
		return tx.MarkContract(addr)
	})
}

// Settings returns the sale configuration and sold amount.
func (r *Runtime) Settings() (*sale.Settings, error) {
	var out *sale.Settings
	err := r.view(func(*state.Tx) error {
		var err error
		out, err = r.sale.Settings()
		return err
	})
	return out, err
}

// IsAuthorizedPaymentCurrency reports allow-list membership.
func (r *Runtime) IsAuthorizedPaymentCurrency(asset common.Address) (bool, error) {
	var ok bool
	err := r.view(func(*state.Tx) error {
		var err error
		ok, err = r.sale.IsAuthorizedPaymentCurrency(asset)
		return err
	})
	return ok, err
}

// PaymentCurrencies lists the payment allow-list.
func (r *Runtime) PaymentCurrencies() ([]common.Address, error) {
	var out []common.Address
	err := r.view(func(*state.Tx) error {
		var err error
		out, err = r.sale.PaymentCurrencies()
		return err
	})
	return out, err
}

// Purchaser is the read view of one address.
type Purchaser struct {
	Claimable    *big.Int
	Withdrawn    *big.Int
	Withdrawable *big.Int
}

// Purchaser returns the entitlement of account.
func (r *Runtime) Purchaser(account common.Address) (*Purchaser, error) {
	out := new(Purchaser)
	err := r.view(func(*state.Tx) error {
		var err error
		if out.Claimable, err = r.sale.ClaimableAmount(account); err != nil {
			return err
		}
		if out.Withdrawn, err = r.sale.WithdrewAmount(account); err != nil {
			return err
		}
		out.Withdrawable, err = r.sale.WithdrawableAmount(account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimableAmount returns the total entitlement of account.
func (r *Runtime) ClaimableAmount(account common.Address) (*big.Int, error) {
	p, err := r.Purchaser(account)
	if err != nil {
		return nil, err
	}
	return p.Claimable, nil
}

// WithdrewAmount returns what account has withdrawn.
func (r *Runtime) WithdrewAmount(account common.Address) (*big.Int, error) {
	p, err := r.Purchaser(account)
	if err != nil {
		return nil, err
	}
	return p.Withdrawn, nil
}

// SoldAmount returns the aggregate sold counter.
func (r *Runtime) SoldAmount() (*big.Int, error) {
	var out *big.Int
	err := r.view(func(*state.Tx) error {
		var err error
		out, err = r.sale.SoldAmount()
		return err
	})
	return out, err
}

// MinterState returns the current minter and the last announced update.
func (r *Runtime) MinterState() (*minter.State, error) {
	var out *minter.State
	err := r.view(func(*state.Tx) error {
		var err error
		out, err = r.minter.State()
		return err
	})
	return out, err
}

// AssetInfo is the read view of a registered asset.
type AssetInfo struct {
	Address     common.Address
	Metadata    token.Metadata
	TotalSupply *big.Int
}

// Assets lists the registered assets.
func (r *Runtime) Assets() ([]AssetInfo, error) {
	var out []AssetInfo
	err := r.view(func(tx *state.Tx) error {
		list, err := tx.TokenAssets()
		if err != nil {
			return err
		}
		for _, addr := range list {
			ledger, err := assetResolver{tx: tx}.ledger(addr)
			if err != nil {
				return err
			}
			meta, err := ledger.Metadata()
			if err != nil {
				return err
			}
			supply, err := ledger.TotalSupply()
			if err != nil {
				return err
			}
			out = append(out, AssetInfo{Address: addr, Metadata: *meta, TotalSupply: supply})
		}
		return nil
	})
	return out, err
}

// Balance returns the asset balance of account.
func (r *Runtime) Balance(asset, account common.Address) (*big.Int, error) {
	var out *big.Int
	err := r.view(func(tx *state.Tx) error {
		ledger, err := assetResolver{tx: tx}.ledger(asset)
		if err != nil {
			return err
		}
		out, err = ledger.BalanceOf(account)
		return err
	})
	return out, err
}

// Allowance returns the allowance owner granted to spender on asset.
func (r *Runtime) Allowance(asset, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	err := r.view(func(tx *state.Tx) error {
		ledger, err := assetResolver{tx: tx}.ledger(asset)
		if err != nil {
			return err
		}
		out, err = ledger.Allowance(owner, spender)
		return err
	})
	return out, err
}
