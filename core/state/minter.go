package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/native/minter"
)

const minterPrefix = "minter/"

type storedMinter struct {
	CurrentMinter common.Address
	NewMinter     common.Address
	EffectiveAt   uint64
	MustExecute   bool
}

// MinterState returns the controller record of asset.
func (tx *Tx) MinterState(asset common.Address) (*minter.State, bool, error) {
	stored := new(storedMinter)
	ok, err := tx.KVGet(prefixedKey(minterPrefix, asset.Bytes()), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &minter.State{
		CurrentMinter: stored.CurrentMinter,
		Pending: minter.PendingUpdate{
			NewMinter:   stored.NewMinter,
			EffectiveAt: int64(stored.EffectiveAt),
			MustExecute: stored.MustExecute,
		},
	}, true, nil
}

// MinterPutState stores the controller record of asset.
func (tx *Tx) MinterPutState(asset common.Address, st *minter.State) error {
	if st == nil {
		return fmt.Errorf("state: nil minter state")
	}
	effectiveAt, err := toUint64("effective time", st.Pending.EffectiveAt)
	if err != nil {
		return err
	}
	return tx.KVPut(prefixedKey(minterPrefix, asset.Bytes()), &storedMinter{
		CurrentMinter: st.CurrentMinter,
		NewMinter:     st.Pending.NewMinter,
		EffectiveAt:   effectiveAt,
		MustExecute:   st.Pending.MustExecute,
	})
}
