package routes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/core"
	"crowdsale/core/state"
	"crowdsale/native/minter"
	"crowdsale/native/sale"
)

type settingsView struct {
	Token                    string `json:"token"`
	Wallet                   string `json:"wallet"`
	SaleStart                int64  `json:"saleStart"`
	SaleEnd                  int64  `json:"saleEnd"`
	WithdrawalStart          int64  `json:"withdrawalStart"`
	WithdrawPeriodDuration   int64  `json:"withdrawPeriodDuration"`
	WithdrawPeriodNumber     uint64 `json:"withdrawPeriodNumber"`
	MinBuyValue              string `json:"minBuyValue"`
	MaxTokenAmountPerAddress string `json:"maxTokenAmountPerAddress"`
	ExchangeRate             string `json:"exchangeRate"`
	ReferralRewardPercentage uint64 `json:"referralRewardPercentage"`
	AmountToSell             string `json:"amountToSell"`
	SoldAmount               string `json:"soldAmount"`
}

func newSettingsView(s *sale.Settings) settingsView {
	return settingsView{
		Token:                    s.Token.Hex(),
		Wallet:                   s.Wallet.Hex(),
		SaleStart:                s.SaleStart,
		SaleEnd:                  s.SaleEnd,
		WithdrawalStart:          s.WithdrawalStart,
		WithdrawPeriodDuration:   s.WithdrawPeriodDuration,
		WithdrawPeriodNumber:     s.WithdrawPeriodNumber,
		MinBuyValue:              amountString(s.MinBuyValue),
		MaxTokenAmountPerAddress: amountString(s.MaxTokenAmountPerAddress),
		ExchangeRate:             amountString(s.ExchangeRate),
		ReferralRewardPercentage: s.ReferralRewardPercentage,
		AmountToSell:             amountString(s.AmountToSell),
		SoldAmount:               amountString(s.SoldAmount),
	}
}

type deploymentView struct {
	Admin   string `json:"admin"`
	Custody string `json:"custody"`
	Token   string `json:"token"`
}

func newDeploymentView(d state.Deployment) deploymentView {
	return deploymentView{Admin: d.Admin.Hex(), Custody: d.Custody.Hex(), Token: d.Token.Hex()}
}

type purchaserView struct {
	Address      string `json:"address"`
	Claimable    string `json:"claimable"`
	Withdrawn    string `json:"withdrawn"`
	Withdrawable string `json:"withdrawable"`
}

func newPurchaserView(addr common.Address, p *core.Purchaser) purchaserView {
	return purchaserView{
		Address:      addr.Hex(),
		Claimable:    amountString(p.Claimable),
		Withdrawn:    amountString(p.Withdrawn),
		Withdrawable: amountString(p.Withdrawable),
	}
}

type assetView struct {
	Address     string `json:"address"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

func newAssetView(info core.AssetInfo) assetView {
	return assetView{
		Address:     info.Address.Hex(),
		Symbol:      info.Metadata.Symbol,
		Name:        info.Metadata.Name,
		Decimals:    info.Metadata.Decimals,
		TotalSupply: amountString(info.TotalSupply),
	}
}

type pendingUpdateView struct {
	NewMinter   string `json:"newMinter"`
	EffectiveAt int64  `json:"effectiveAt"`
	MustExecute bool   `json:"mustExecute"`
}

type minterView struct {
	CurrentMinter string             `json:"currentMinter"`
	Pending       *pendingUpdateView `json:"pending,omitempty"`
}

func newPendingUpdateView(p *minter.PendingUpdate) *pendingUpdateView {
	if p == nil {
		return nil
	}
	return &pendingUpdateView{NewMinter: p.NewMinter.Hex(), EffectiveAt: p.EffectiveAt, MustExecute: p.MustExecute}
}

func newMinterView(s *minter.State) minterView {
	view := minterView{CurrentMinter: s.CurrentMinter.Hex()}
	if s.HasPending() {
		view.Pending = newPendingUpdateView(&s.Pending)
	}
	return view
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
