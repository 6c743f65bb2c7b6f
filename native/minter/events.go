package minter

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/core/types"
)

const (
	EventTypeUpdateLaunched = "minter.update_launched"
	EventTypeUpdateExecuted = "minter.update_executed"
	EventTypeMinted         = "minter.minted"
	EventTypeBurned         = "minter.burned"
)

type minterEvent struct {
	evt *types.Event
}

func (e minterEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e minterEvent) Event() *types.Event { return e.evt }

func NewUpdateLaunchedEvent(asset, newMinter common.Address, effectiveAt int64) *types.Event {
	return &types.Event{
		Type: EventTypeUpdateLaunched,
		Attributes: map[string]string{
			"asset":       asset.Hex(),
			"newMinter":   newMinter.Hex(),
			"effectiveAt": strconv.FormatInt(effectiveAt, 10),
		},
	}
}

func NewUpdateExecutedEvent(asset, newMinter common.Address) *types.Event {
	return &types.Event{
		Type: EventTypeUpdateExecuted,
		Attributes: map[string]string{
			"asset":     asset.Hex(),
			"newMinter": newMinter.Hex(),
		},
	}
}

func newSupplyEvent(eventType string, asset, account common.Address, amount *big.Int) *types.Event {
	value := "0"
	if amount != nil {
		value = amount.String()
	}
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"asset":   asset.Hex(),
			"account": account.Hex(),
			"amount":  value,
		},
	}
}
