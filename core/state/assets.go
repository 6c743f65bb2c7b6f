package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/native/token"
)

var (
	tokenListKey      = []byte("token/list")
	tokenMetaPrefix   = "token/meta/"
	tokenSupplyPrefix = "token/supply/"
	balancePrefix     = "token/balance/"
	allowancePrefix   = "token/allowance/"
	codePrefix        = "code/"
)

type storedTokenMetadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// TokenMetadata returns the metadata of a registered asset.
func (tx *Tx) TokenMetadata(asset common.Address) (*token.Metadata, bool, error) {
	stored := new(storedTokenMetadata)
	ok, err := tx.KVGet(prefixedKey(tokenMetaPrefix, asset.Bytes()), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &token.Metadata{Symbol: stored.Symbol, Name: stored.Name, Decimals: stored.Decimals}, true, nil
}

// TokenPutMetadata stores asset metadata and records the asset in the token
// index on first registration.
func (tx *Tx) TokenPutMetadata(asset common.Address, meta *token.Metadata) error {
	if meta == nil {
		return fmt.Errorf("state: nil token metadata")
	}
	_, exists, err := tx.TokenMetadata(asset)
	if err != nil {
		return err
	}
	if !exists {
		list, err := tx.TokenAssets()
		if err != nil {
			return err
		}
		if err := tx.KVPut(tokenListKey, append(list, asset)); err != nil {
			return err
		}
	}
	stored := &storedTokenMetadata{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals}
	return tx.KVPut(prefixedKey(tokenMetaPrefix, asset.Bytes()), stored)
}

// TokenAssets lists registered assets in registration order.
func (tx *Tx) TokenAssets() ([]common.Address, error) {
	var list []common.Address
	if _, err := tx.KVGet(tokenListKey, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []common.Address{}
	}
	return list, nil
}

func (tx *Tx) loadAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := tx.KVGet(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (tx *Tx) storeAmount(key []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: amount must not be negative")
	}
	return tx.KVPut(key, amount)
}

// TokenBalance returns the balance of account on asset.
func (tx *Tx) TokenBalance(asset, account common.Address) (*big.Int, error) {
	return tx.loadAmount(prefixedKey(balancePrefix, asset.Bytes(), account.Bytes()))
}

// TokenSetBalance overwrites the balance of account on asset.
func (tx *Tx) TokenSetBalance(asset, account common.Address, amount *big.Int) error {
	return tx.storeAmount(prefixedKey(balancePrefix, asset.Bytes(), account.Bytes()), amount)
}

// TokenAllowance returns the allowance granted by owner to spender.
func (tx *Tx) TokenAllowance(asset, owner, spender common.Address) (*big.Int, error) {
	return tx.loadAmount(prefixedKey(allowancePrefix, asset.Bytes(), owner.Bytes(), spender.Bytes()))
}

// TokenSetAllowance overwrites the allowance granted by owner to spender.
func (tx *Tx) TokenSetAllowance(asset, owner, spender common.Address, amount *big.Int) error {
	return tx.storeAmount(prefixedKey(allowancePrefix, asset.Bytes(), owner.Bytes(), spender.Bytes()), amount)
}

// TokenSupply returns the total supply of asset.
func (tx *Tx) TokenSupply(asset common.Address) (*big.Int, error) {
	return tx.loadAmount(prefixedKey(tokenSupplyPrefix, asset.Bytes()))
}

// TokenSetSupply overwrites the total supply of asset.
func (tx *Tx) TokenSetSupply(asset common.Address, amount *big.Int) error {
	return tx.storeAmount(prefixedKey(tokenSupplyPrefix, asset.Bytes()), amount)
}

// MarkContract flags addr as carrying deployed code.
func (tx *Tx) MarkContract(addr common.Address) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("state: cannot mark the zero address as a contract")
	}
	return tx.KVPut(prefixedKey(codePrefix, addr.Bytes()), true)
}

// HasCode reports whether addr carries deployed code.
func (tx *Tx) HasCode(addr common.Address) (bool, error) {
	var flag bool
	ok, err := tx.KVGet(prefixedKey(codePrefix, addr.Bytes()), &flag)
	if err != nil {
		return false, err
	}
	return ok && flag, nil
}
