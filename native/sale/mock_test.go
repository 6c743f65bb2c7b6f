package sale

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/core/events"
	"crowdsale/core/types"
)

type mockState struct {
	config     *Config
	sold       *big.Int
	purchasers map[common.Address]*PurchaserRecord
	currencies []common.Address
}

func newMockState() *mockState {
	return &mockState{
		sold:       big.NewInt(0),
		purchasers: make(map[common.Address]*PurchaserRecord),
	}
}

func (m *mockState) SaleConfig() (*Config, bool, error) {
	if m.config == nil {
		return nil, false, nil
	}
	return m.config.Clone(), true, nil
}

func (m *mockState) SalePutConfig(cfg *Config) error {
	m.config = cfg.Clone()
	return nil
}

func (m *mockState) SaleCurrencyAuthorized(asset common.Address) (bool, error) {
	for _, c := range m.currencies {
		if c == asset {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockState) SaleAuthorizeCurrency(asset common.Address) error {
	m.currencies = append(m.currencies, asset)
	return nil
}

func (m *mockState) SaleCurrencies() ([]common.Address, error) {
	return append([]common.Address(nil), m.currencies...), nil
}

func (m *mockState) SalePurchaser(addr common.Address) (*PurchaserRecord, bool, error) {
	record, ok := m.purchasers[addr]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) SalePutPurchaser(addr common.Address, record *PurchaserRecord) error {
	m.purchasers[addr] = record.Clone()
	return nil
}

func (m *mockState) SaleSoldAmount() (*big.Int, error) { return new(big.Int).Set(m.sold), nil }

func (m *mockState) SaleSetSoldAmount(amount *big.Int) error {
	m.sold = new(big.Int).Set(amount)
	return nil
}

var errMockInsufficient = errors.New("mock asset: insufficient balance")

type mockAsset struct {
	balances   map[common.Address]*big.Int
	burned     *big.Int
	fail       error
	onTransfer func()
}

func newMockAsset() *mockAsset {
	return &mockAsset{balances: make(map[common.Address]*big.Int), burned: big.NewInt(0)}
}

func (a *mockAsset) credit(addr common.Address, amount *big.Int) {
	a.balances[addr] = new(big.Int).Add(a.BalanceOfOrZero(addr), amount)
}

func (a *mockAsset) BalanceOfOrZero(addr common.Address) *big.Int {
	if bal, ok := a.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (a *mockAsset) BalanceOf(addr common.Address) (*big.Int, error) {
	return a.BalanceOfOrZero(addr), nil
}

func (a *mockAsset) move(from, to common.Address, amount *big.Int) error {
	if a.onTransfer != nil {
		a.onTransfer()
	}
	if a.fail != nil {
		return a.fail
	}
	bal := a.BalanceOfOrZero(from)
	if bal.Cmp(amount) < 0 {
		return errMockInsufficient
	}
	a.balances[from] = bal.Sub(bal, amount)
	a.credit(to, amount)
	return nil
}

func (a *mockAsset) Transfer(from, to common.Address, amount *big.Int) error {
	return a.move(from, to, amount)
}

func (a *mockAsset) TransferFrom(_, owner, to common.Address, amount *big.Int) error {
	return a.move(owner, to, amount)
}

func (a *mockAsset) Burn(holder common.Address, amount *big.Int) error {
	bal := a.BalanceOfOrZero(holder)
	if bal.Cmp(amount) < 0 {
		return errMockInsufficient
	}
	a.balances[holder] = bal.Sub(bal, amount)
	a.burned.Add(a.burned, amount)
	return nil
}

type mockResolver map[common.Address]Asset

func (r mockResolver) Asset(id common.Address) (Asset, error) {
	asset, ok := r[id]
	if !ok {
		return nil, errors.New("mock resolver: unknown asset")
	}
	return asset, nil
}

type capturingEmitter struct {
	events []*types.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, events.Payload(evt))
}

func (c *capturingEmitter) types() []string {
	out := make([]string, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.Type
	}
	return out
}

func testAddress(fill byte) common.Address {
	return common.BytesToAddress(bytes.Repeat([]byte{fill}, common.AddressLength))
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), RateScale)
}
