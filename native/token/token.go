package token

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	errs "crowdsale/core/errors"
	"crowdsale/core/events"
	"crowdsale/core/types"
)

const (
	EventTypeTransfer = "token.transfer"
	EventTypeApproval = "token.approval"
)

var errNilState = errors.New("token ledger: state not configured")

var (
	ErrInsufficientBalance   = errs.New(errs.ErrInsufficientFunds, "token: transfer amount exceeds balance")
	ErrInsufficientAllowance = errs.New(errs.ErrInsufficientFunds, "token: insufficient allowance")
	ErrUnknownAsset          = errs.New(errs.ErrValidation, "token: unknown asset")
	ErrAlreadyRegistered     = errs.New(errs.ErrValidation, "token: asset already registered")
	ErrZeroAddress           = errs.New(errs.ErrValidation, "token: zero address")
	ErrInvalidAmount         = errs.New(errs.ErrValidation, "token: amount must not be negative")
	ErrSupplyOverflow        = errs.New(errs.ErrValidation, "token: total supply overflows 256 bits")
	ErrInvalidMetadata       = errs.New(errs.ErrValidation, "token: invalid metadata")
)

// Metadata describes a registered asset.
type Metadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

type ledgerState interface {
	TokenMetadata(asset common.Address) (*Metadata, bool, error)
	TokenPutMetadata(asset common.Address, meta *Metadata) error
	TokenBalance(asset, account common.Address) (*big.Int, error)
	TokenSetBalance(asset, account common.Address, amount *big.Int) error
	TokenAllowance(asset, owner, spender common.Address) (*big.Int, error)
	TokenSetAllowance(asset, owner, spender common.Address, amount *big.Int) error
	TokenSupply(asset common.Address) (*big.Int, error)
	TokenSetSupply(asset common.Address, amount *big.Int) error
	MarkContract(addr common.Address) error
}

type tokenEvent struct {
	evt *types.Event
}

func (e tokenEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e tokenEvent) Event() *types.Event { return e.evt }

// Register deploys a new asset at addr and marks the address as code bearing.
func Register(state ledgerState, addr common.Address, meta Metadata) error {
	if state == nil {
		return errNilState
	}
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	meta.Symbol = strings.TrimSpace(meta.Symbol)
	if meta.Symbol == "" {
		return ErrInvalidMetadata
	}
	if _, ok, err := state.TokenMetadata(addr); err != nil {
		return err
	} else if ok {
		return ErrAlreadyRegistered
	}
	if err := state.TokenPutMetadata(addr, &meta); err != nil {
		return err
	}
	return state.MarkContract(addr)
}

// Ledger is the balance book of a single registered asset.
type Ledger struct {
	state   ledgerState
	asset   common.Address
	emitter events.Emitter
}

// Open returns the ledger of a registered asset.
func Open(state ledgerState, asset common.Address) (*Ledger, error) {
	if state == nil {
		return nil, errNilState
	}
	_, ok, err := state.TokenMetadata(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownAsset
	}
	return &Ledger{state: state, asset: asset, emitter: events.NoopEmitter{}}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Address returns the asset identity.
func (l *Ledger) Address() common.Address { return l.asset }

// Metadata returns the asset metadata.
func (l *Ledger) Metadata() (*Metadata, error) {
	meta, _, err := l.state.TokenMetadata(l.asset)
	if err != nil {
		return nil, err
	}
	clone := *meta
	return &clone, nil
}

func (l *Ledger) BalanceOf(account common.Address) (*big.Int, error) {
	return l.state.TokenBalance(l.asset, account)
}

func (l *Ledger) TotalSupply() (*big.Int, error) {
	return l.state.TokenSupply(l.asset)
}

func (l *Ledger) Allowance(owner, spender common.Address) (*big.Int, error) {
	return l.state.TokenAllowance(l.asset, owner, spender)
}

// Transfer moves amount from sender to recipient.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	l.emitTransfer(from, to, amount)
	return nil
}

// Approve sets the allowance of spender over owner's balance.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := l.state.TokenSetAllowance(l.asset, owner, spender, new(big.Int).Set(amount)); err != nil {
		return err
	}
	l.emit(&types.Event{
		Type: EventTypeApproval,
		Attributes: map[string]string{
			"asset":   l.asset.Hex(),
			"owner":   owner.Hex(),
			"spender": spender.Hex(),
			"amount":  amount.String(),
		},
	})
	return nil
}

// TransferFrom moves amount from owner to recipient using spender's
// allowance.
func (l *Ledger) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if owner == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}
	allowance, err := l.state.TokenAllowance(l.asset, owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := l.move(owner, to, amount); err != nil {
		return err
	}
	if err := l.state.TokenSetAllowance(l.asset, owner, spender, allowance.Sub(allowance, amount)); err != nil {
		return err
	}
	l.emitTransfer(owner, to, amount)
	return nil
}

// Mint creates amount and credits it to recipient.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	supply, err := l.state.TokenSupply(l.asset)
	if err != nil {
		return err
	}
	supply.Add(supply, amount)
	if _, overflow := uint256.FromBig(supply); overflow {
		return ErrSupplyOverflow
	}
	balance, err := l.state.TokenBalance(l.asset, to)
	if err != nil {
		return err
	}
	if err := l.state.TokenSetBalance(l.asset, to, balance.Add(balance, amount)); err != nil {
		return err
	}
	if err := l.state.TokenSetSupply(l.asset, supply); err != nil {
		return err
	}
	l.emitTransfer(common.Address{}, to, amount)
	return nil
}

// Burn destroys amount held by holder.
func (l *Ledger) Burn(holder common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	balance, err := l.state.TokenBalance(l.asset, holder)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := l.state.TokenSupply(l.asset)
	if err != nil {
		return err
	}
	if err := l.state.TokenSetBalance(l.asset, holder, balance.Sub(balance, amount)); err != nil {
		return err
	}
	if err := l.state.TokenSetSupply(l.asset, supply.Sub(supply, amount)); err != nil {
		return err
	}
	l.emitTransfer(holder, common.Address{}, amount)
	return nil
}

func (l *Ledger) move(from, to common.Address, amount *big.Int) error {
	fromBalance, err := l.state.TokenBalance(l.asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if err := l.state.TokenSetBalance(l.asset, from, fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := l.state.TokenBalance(l.asset, to)
	if err != nil {
		return err
	}
	return l.state.TokenSetBalance(l.asset, to, toBalance.Add(toBalance, amount))
}

func (l *Ledger) emitTransfer(from, to common.Address, amount *big.Int) {
	l.emit(&types.Event{
		Type: EventTypeTransfer,
		Attributes: map[string]string{
			"asset":  l.asset.Hex(),
			"from":   from.Hex(),
			"to":     to.Hex(),
			"amount": amount.String(),
		},
	})
}

func (l *Ledger) emit(event *types.Event) {
	if l.emitter == nil {
		return
	}
	l.emitter.Emit(tokenEvent{evt: event})
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// FormatUnits renders amount with the given number of decimals.
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}
	neg := amount.Sign() < 0
	digits := new(big.Int).Abs(amount).String()
	if len(digits) <= int(decimals) {
		digits = strings.Repeat("0", int(decimals)-len(digits)+1) + digits
	}
	point := len(digits) - int(decimals)
	whole, frac := digits[:point], strings.TrimRight(digits[point:], "0")
	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ParseUnits parses a decimal string into base units.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, ErrInvalidAmount
	}
	whole, frac, _ := strings.Cut(value, ".")
	if len(frac) > int(decimals) {
		return nil, ErrInvalidAmount
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))
	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok || out.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return out, nil
}
