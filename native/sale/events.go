package sale

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/core/types"
)

const (
	EventTypeConfigured                  = "sale.configured"
	EventTypePaymentCurrenciesAuthorized = "sale.payment_currencies_authorized"
	EventTypeTokenBought                 = "sale.token_bought"
	EventTypeTokenWithdrew               = "sale.token_withdrew"
	EventTypeRemainingTokensBurnt        = "sale.remaining_tokens_burnt"
)

// Configuration fields addressable by the admin setters. Each maps to a
// "sale.<field>_updated" event.
const (
	FieldToken                    = "token"
	FieldWallet                   = "wallet"
	FieldSaleStart                = "sale_start"
	FieldSaleEnd                  = "sale_end"
	FieldWithdrawalStart          = "withdrawal_start"
	FieldWithdrawPeriodDuration   = "withdraw_period_duration"
	FieldWithdrawPeriodNumber     = "withdraw_period_number"
	FieldMinBuyValue              = "min_buy_value"
	FieldMaxTokenAmountPerAddress = "max_token_amount_per_address"
	FieldExchangeRate             = "exchange_rate"
	FieldReferralRewardPercentage = "referral_reward_percentage"
	FieldAmountToSell             = "amount_to_sell"
)

// UpdatedEventType returns the event type emitted when field changes.
func UpdatedEventType(field string) string {
	return "sale." + field + "_updated"
}

type saleEvent struct {
	evt *types.Event
}

func (e saleEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e saleEvent) Event() *types.Event { return e.evt }

// NewConfiguredEvent is emitted when the sale configuration is installed.
func NewConfiguredEvent(cfg *Config, updater common.Address) *types.Event {
	attrs := map[string]string{"updater": updater.Hex()}
	if cfg != nil {
		attrs["token"] = cfg.Token.Hex()
		attrs["wallet"] = cfg.Wallet.Hex()
		attrs["saleStart"] = formatInt(cfg.SaleStart)
		attrs["saleEnd"] = formatInt(cfg.SaleEnd)
		attrs["withdrawalStart"] = formatInt(cfg.WithdrawalStart)
		attrs["amountToSell"] = cloneBigInt(cfg.AmountToSell).String()
		attrs["exchangeRate"] = cloneBigInt(cfg.ExchangeRate).String()
	}
	return &types.Event{Type: EventTypeConfigured, Attributes: attrs}
}

// NewFieldUpdatedEvent records an admin setter call.
func NewFieldUpdatedEvent(field, value string, updater common.Address) *types.Event {
	return &types.Event{
		Type: UpdatedEventType(field),
		Attributes: map[string]string{
			"value":   value,
			"updater": updater.Hex(),
		},
	}
}

// NewPaymentCurrenciesAuthorizedEvent lists the assets passed to the
// authorization call.
func NewPaymentCurrenciesAuthorizedEvent(tokens []common.Address) *types.Event {
	hexes := make([]string, len(tokens))
	for i, token := range tokens {
		hexes[i] = token.Hex()
	}
	return &types.Event{
		Type:       EventTypePaymentCurrenciesAuthorized,
		Attributes: map[string]string{"tokens": strings.Join(hexes, ",")},
	}
}

// NewTokenBoughtEvent records a purchase. The referral attribute is omitted
// when no referral was given.
func NewTokenBoughtEvent(account, currency common.Address, value, amount *big.Int, referral common.Address) *types.Event {
	attrs := map[string]string{
		"account":  account.Hex(),
		"currency": currency.Hex(),
		"value":    cloneBigInt(value).String(),
		"amount":   cloneBigInt(amount).String(),
	}
	if referral != (common.Address{}) {
		attrs["referral"] = referral.Hex()
	}
	return &types.Event{Type: EventTypeTokenBought, Attributes: attrs}
}

// NewTokenWithdrewEvent records a vested release.
func NewTokenWithdrewEvent(account common.Address, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeTokenWithdrew,
		Attributes: map[string]string{
			"account": account.Hex(),
			"amount":  cloneBigInt(amount).String(),
		},
	}
}

// NewRemainingTokensBurntEvent records the finalization burn.
func NewRemainingTokensBurntEvent(amount *big.Int, caller common.Address) *types.Event {
	return &types.Event{
		Type: EventTypeRemainingTokensBurnt,
		Attributes: map[string]string{
			"remainingBalance": cloneBigInt(amount).String(),
			"caller":           caller.Hex(),
		},
	}
}
