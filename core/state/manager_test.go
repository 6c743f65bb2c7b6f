package state

import (
	"bytes"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"crowdsale/core/events"
	"crowdsale/core/types"
	"crowdsale/native/minter"
	"crowdsale/native/sale"
	"crowdsale/native/token"
	"crowdsale/storage"
)

type namedEvent string

func (e namedEvent) EventType() string { return string(e) }

func addr(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, common.AddressLength))
}

func TestUpdateCommitsAndPublishes(t *testing.T) {
	log := events.NewLog()
	m := NewManager(storage.NewMemDB())
	m.SetEmitter(log)

	err := m.Update(func(tx *Tx) error {
		tx.Emit(namedEvent("first"))
		return tx.SaleSetSoldAmount(big.NewInt(42))
	})
	require.NoError(t, err)
	require.Equal(t, 1, log.Len())

	require.NoError(t, m.View(func(tx *Tx) error {
		sold, err := tx.SaleSoldAmount()
		require.NoError(t, err)
		require.Equal(t, int64(42), sold.Int64())
		return nil
	}))
}

func TestUpdateDiscardsOnError(t *testing.T) {
	log := events.NewLog()
	m := NewManager(storage.NewMemDB())
	m.SetEmitter(log)
	boom := errors.New("boom")

	err := m.Update(func(tx *Tx) error {
		require.NoError(t, tx.SaleSetSoldAmount(big.NewInt(7)))
		require.NoError(t, tx.SaleAuthorizeCurrency(addr(0x20)))
		tx.Emit(namedEvent("discarded"))
		sold, err := tx.SaleSoldAmount()
		require.NoError(t, err)
		require.Equal(t, int64(7), sold.Int64(), "writes are visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Zero(t, log.Len())

	require.NoError(t, m.View(func(tx *Tx) error {
		sold, err := tx.SaleSoldAmount()
		require.NoError(t, err)
		require.Zero(t, sold.Sign())
		ok, err := tx.SaleCurrencyAuthorized(addr(0x20))
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestViewDiscardsWrites(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	require.NoError(t, m.View(func(tx *Tx) error {
		return tx.SaleSetSoldAmount(big.NewInt(1))
	}))
	require.NoError(t, m.View(func(tx *Tx) error {
		sold, err := tx.SaleSoldAmount()
		require.NoError(t, err)
		require.Zero(t, sold.Sign())
		return nil
	}))
}

func TestSaleRecordsRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	cfg := &sale.Config{
		Token:                    addr(0x10),
		Wallet:                   addr(0x03),
		SaleStart:                100,
		SaleEnd:                  200,
		WithdrawalStart:          300,
		WithdrawPeriodDuration:   30,
		WithdrawPeriodNumber:     4,
		MinBuyValue:              big.NewInt(5),
		MaxTokenAmountPerAddress: big.NewInt(1_000),
		ExchangeRate:             new(big.Int).Set(sale.RateScale),
		ReferralRewardPercentage: 15,
		AmountToSell:             big.NewInt(10_000),
	}
	buyer := addr(0xA1)
	require.NoError(t, m.Update(func(tx *Tx) error {
		require.NoError(t, tx.SalePutConfig(cfg))
		require.NoError(t, tx.SaleAuthorizeCurrency(addr(0x20)))
		require.NoError(t, tx.SaleAuthorizeCurrency(addr(0x21)))
		require.NoError(t, tx.SaleAuthorizeCurrency(addr(0x20)))
		return tx.SalePutPurchaser(buyer, &sale.PurchaserRecord{Claimable: big.NewInt(9), Withdrawn: big.NewInt(3)})
	}))
	require.NoError(t, m.View(func(tx *Tx) error {
		got, ok, err := tx.SaleConfig()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, cfg, got)

		list, err := tx.SaleCurrencies()
		require.NoError(t, err)
		require.Equal(t, []common.Address{addr(0x20), addr(0x21)}, list)

		record, ok, err := tx.SalePurchaser(buyer)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, int64(9), record.Claimable.Int64())
		require.Equal(t, int64(3), record.Withdrawn.Int64())

		_, ok, err = tx.SalePurchaser(addr(0xEE))
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestSalePutConfigRejectsNegativeTimes(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	err := m.Update(func(tx *Tx) error {
		return tx.SalePutConfig(&sale.Config{SaleStart: -1})
	})
	require.Error(t, err)
}

func TestTokenAndMinterRecords(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	asset := addr(0x10)
	require.NoError(t, m.Update(func(tx *Tx) error {
		require.NoError(t, token.Register(tx, asset, token.Metadata{Symbol: "TOTM", Name: "Totem", Decimals: 18}))
		require.NoError(t, tx.TokenSetBalance(asset, addr(0x01), big.NewInt(50)))
		require.NoError(t, tx.TokenSetAllowance(asset, addr(0x01), addr(0x02), big.NewInt(5)))
		return tx.MinterPutState(asset, &minter.State{
			CurrentMinter: addr(0x0A),
			Pending:       minter.PendingUpdate{NewMinter: addr(0x0B), EffectiveAt: 604_800, MustExecute: true},
		})
	}))
	require.NoError(t, m.View(func(tx *Tx) error {
		meta, ok, err := tx.TokenMetadata(asset)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "TOTM", meta.Symbol)

		assets, err := tx.TokenAssets()
		require.NoError(t, err)
		require.Equal(t, []common.Address{asset}, assets)

		hasCode, err := tx.HasCode(asset)
		require.NoError(t, err)
		require.True(t, hasCode)
		hasCode, err = tx.HasCode(addr(0x01))
		require.NoError(t, err)
		require.False(t, hasCode)

		balance, err := tx.TokenBalance(asset, addr(0x01))
		require.NoError(t, err)
		require.Equal(t, int64(50), balance.Int64())
		allowance, err := tx.TokenAllowance(asset, addr(0x01), addr(0x02))
		require.NoError(t, err)
		require.Equal(t, int64(5), allowance.Int64())

		st, ok, err := tx.MinterState(asset)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, addr(0x0A), st.CurrentMinter)
		require.Equal(t, int64(604_800), st.Pending.EffectiveAt)
		require.True(t, st.Pending.MustExecute)
		return nil
	}))
}

func TestManagerPersistsToLevelDB(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)
	m := NewManager(db)
	require.NoError(t, m.Update(func(tx *Tx) error {
		return tx.PutDeployment(&Deployment{Admin: addr(0x01), Custody: addr(0x02), Token: addr(0x10)})
	}))
	require.NoError(t, m.Close())

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	m = NewManager(db)
	defer m.Close()
	require.NoError(t, m.View(func(tx *Tx) error {
		d, ok, err := tx.Deployment()
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, addr(0x02), d.Custody)
		return nil
	}))
}

func TestEventsPublishedInOrder(t *testing.T) {
	log := events.NewLog()
	m := NewManager(storage.NewMemDB())
	m.SetEmitter(log)
	require.NoError(t, m.Update(func(tx *Tx) error {
		tx.Emit(namedEvent("a"))
		tx.Emit(namedEvent("b"))
		return nil
	}))
	got := log.Since(0)
	require.Len(t, got, 2)
	require.Equal(t, []*types.Event{
		{Sequence: 1, Type: "a", Attributes: map[string]string{}},
		{Sequence: 2, Type: "b", Attributes: map[string]string{}},
	}, got)
}
