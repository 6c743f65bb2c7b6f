package sale

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type ledgerState interface {
	SalePurchaser(addr common.Address) (*PurchaserRecord, bool, error)
	SalePutPurchaser(addr common.Address, record *PurchaserRecord) error
	SaleSoldAmount() (*big.Int, error)
	SaleSetSoldAmount(amount *big.Int) error
}

// Ledger keeps per-address entitlements and the aggregate sold counter. All
// counters only ever grow.
type Ledger struct {
	state ledgerState
}

// NewLedger binds a ledger to its state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

// Record returns the purchaser record for addr. Unknown addresses yield a
// zero record.
func (l *Ledger) Record(addr common.Address) (*PurchaserRecord, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	record, ok, err := l.state.SalePurchaser(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (*PurchaserRecord)(nil).Clone(), nil
	}
	return record.Clone(), nil
}

// SoldAmount returns the aggregate amount sold so far.
func (l *Ledger) SoldAmount() (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	sold, err := l.state.SaleSoldAmount()
	if err != nil {
		return nil, err
	}
	return cloneBigInt(sold), nil
}

// CheckSale verifies that selling amount keeps the sold counter within limit.
func (l *Ledger) CheckSale(amount, limit *big.Int) error {
	sold, err := l.SoldAmount()
	if err != nil {
		return err
	}
	if new(big.Int).Add(sold, amount).Cmp(limit) > 0 {
		return ErrSupplyExhausted
	}
	return nil
}

// RecordSale increases the sold counter by amount, refusing to exceed limit.
func (l *Ledger) RecordSale(amount, limit *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	sold, err := l.SoldAmount()
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(sold, amount)
	if updated.Cmp(limit) > 0 {
		return ErrSupplyExhausted
	}
	return l.state.SaleSetSoldAmount(updated)
}

// Credit adds amount to the claimable entitlement of addr.
func (l *Ledger) Credit(addr common.Address, amount *big.Int) (*PurchaserRecord, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	record, err := l.Record(addr)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return record, nil
	}
	record.Claimable.Add(record.Claimable, amount)
	if err := l.state.SalePutPurchaser(addr, record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// RecordWithdrawal adds amount to the withdrawn counter of addr. The counter
// can never pass the claimable amount.
func (l *Ledger) RecordWithdrawal(addr common.Address, amount *big.Int) (*PurchaserRecord, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	record, err := l.Record(addr)
	if err != nil {
		return nil, err
	}
	updated := new(big.Int).Add(record.Withdrawn, amount)
	if updated.Cmp(record.Claimable) > 0 {
		return nil, ErrOverWithdrawal
	}
	record.Withdrawn = updated
	if err := l.state.SalePutPurchaser(addr, record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}
