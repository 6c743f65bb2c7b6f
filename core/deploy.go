package core

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/core/state"
	"crowdsale/native/sale"
	"crowdsale/native/token"
)

// AssetSpec registers an asset and mints its initial balances.
type AssetSpec struct {
	Address  common.Address
	Metadata token.Metadata
	Balances map[common.Address]*big.Int
}

// Allowance pre-approves a spender at deployment.
type Allowance struct {
	Asset   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

// DeploySpec describes the one-shot initialization of a sale.
type DeploySpec struct {
	Admin             common.Address
	Custody           common.Address
	Sale              *sale.Config
	Assets            []AssetSpec
	Allowances        []Allowance
	PaymentCurrencies []common.Address
	Contracts         []common.Address
}

// Deploy registers the assets, installs the sale configuration and the
// payment allow-list, and records the deployment, all in one transaction.
// It must run before the sale starts.
func (r *Runtime) Deploy(spec DeploySpec) error {
	if r.state == nil {
		return errNilManager
	}
	if spec.Admin == (common.Address{}) || spec.Custody == (common.Address{}) {
		return fmt.Errorf("%w: admin and custody must be set", sale.ErrInvalidConfig)
	}
	if err := spec.Sale.Validate(); err != nil {
		return err
	}
	previous := r.deployment
	deployment := &state.Deployment{Admin: spec.Admin, Custody: spec.Custody, Token: spec.Sale.Token}
	err := r.state.Update(func(tx *state.Tx) error {
		if _, ok, err := tx.Deployment(); err != nil {
			return err
		} else if ok {
			return ErrAlreadyDeployed
		}
		for _, asset := range spec.Assets {
			if err := token.Register(tx, asset.Address, asset.Metadata); err != nil {
				return fmt.Errorf("register %s: %w", asset.Metadata.Symbol, err)
			}
			ledger, err := assetResolver{tx: tx}.ledger(asset.Address)
			if err != nil {
				return err
			}
			holders := make([]common.Address, 0, len(asset.Balances))
			for holder := range asset.Balances {
				holders = append(holders, holder)
			}
			sort.Slice(holders, func(i, j int) bool {
				return bytes.Compare(holders[i].Bytes(), holders[j].Bytes()) < 0
			})
			for _, holder := range holders {
				if err := ledger.Mint(holder, asset.Balances[holder]); err != nil {
					return fmt.Errorf("mint %s: %w", asset.Metadata.Symbol, err)
				}
			}
		}
		for _, allowance := range spec.Allowances {
			ledger, err := assetResolver{tx: tx}.ledger(allowance.Asset)
			if err != nil {
				return err
			}
			if err := ledger.Approve(allowance.Owner, allowance.Spender, allowance.Amount); err != nil {
				return err
			}
		}
		for _, contract := range spec.Contracts {
			if err := tx.MarkContract(contract); err != nil {
				return err
			}
		}
		if err := tx.PutDeployment(deployment); err != nil {
			return err
		}
		r.install(deployment)
		if err := r.bind(tx); err != nil {
			return err
		}
		if err := r.sale.Initialize(spec.Admin, spec.Sale); err != nil {
			return err
		}
		if len(spec.PaymentCurrencies) == 0 {
			return nil
		}
		return r.sale.AuthorizePaymentCurrencies(spec.Admin, spec.PaymentCurrencies)
	})
	if err != nil {
		if previous != nil {
			r.install(previous)
		} else {
			r.deployment = nil
		}
		r.logger.Error("deployment failed", "error", err)
		return err
	}
	r.logger.Info("sale deployed",
		"admin", spec.Admin.Hex(),
		"custody", spec.Custody.Hex(),
		"token", spec.Sale.Token.Hex(),
		"currencies", len(spec.PaymentCurrencies))
	return nil
}
