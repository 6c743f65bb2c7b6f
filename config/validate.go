package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/core"
)

// ValidateDeployment checks the cross-field rules of a resolved deployment.
func ValidateDeployment(spec core.DeploySpec) error {
	if spec.Admin == (common.Address{}) {
		return fmt.Errorf("deployment: Admin must be set")
	}
	if spec.Custody == (common.Address{}) {
		return fmt.Errorf("deployment: Custody must be set")
	}
	if spec.Admin == spec.Custody {
		return fmt.Errorf("deployment: Admin and Custody must differ")
	}
	if err := spec.Sale.Validate(); err != nil {
		return fmt.Errorf("deployment: %w", err)
	}
	if spec.Sale.WithdrawalStart < spec.Sale.SaleEnd {
		return fmt.Errorf("deployment: WithdrawalStart precedes SaleEnd")
	}
	registered := false
	for _, asset := range spec.Assets {
		if asset.Address == spec.Sale.Token {
			registered = true
		}
	}
	if !registered {
		return fmt.Errorf("deployment: sold asset %s is not declared in Assets", spec.Sale.Token.Hex())
	}
	decimals := make(map[common.Address]uint8, len(spec.Assets))
	for _, asset := range spec.Assets {
		decimals[asset.Address] = asset.Metadata.Decimals
	}
	for _, currency := range spec.PaymentCurrencies {
		if currency == spec.Sale.Token {
			return fmt.Errorf("deployment: sold asset cannot be a payment currency")
		}
		// MinBuyValue and ExchangeRate are expressed against one payment
		// precision shared by every currency.
		if d, ok := decimals[currency]; ok && d != PaymentValueDecimals {
			return fmt.Errorf("deployment: payment currency %s has %d decimals, want %d", currency.Hex(), d, PaymentValueDecimals)
		}
	}
	return nil
}
