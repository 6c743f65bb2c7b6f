package sale

import (
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/core/events"
	"crowdsale/core/types"
)

type engineState interface {
	registryState
	ledgerState
	SaleConfig() (*Config, bool, error)
	SalePutConfig(cfg *Config) error
}

// Asset is the fungible-asset capability the engine drives. Spender and
// sender identities are passed explicitly.
type Asset interface {
	BalanceOf(account common.Address) (*big.Int, error)
	Transfer(from, to common.Address, amount *big.Int) error
	TransferFrom(spender, owner, to common.Address, amount *big.Int) error
}

// Burner is implemented by assets whose holders can destroy their balance.
type Burner interface {
	Burn(holder common.Address, amount *big.Int) error
}

// AssetResolver looks up the asset deployed at an address.
type AssetResolver interface {
	Asset(id common.Address) (Asset, error)
}

// Engine runs the sale: configuration while the sale has not started,
// purchases inside [SaleStart, SaleEnd), vested withdrawals after
// WithdrawalStart and the finalization burn after SaleEnd.
//
// The engine mutates state before calling into assets. Callers run every
// operation inside a state transaction so that a failing asset call discards
// the bookkeeping done before it.
type Engine struct {
	state   engineState
	assets  AssetResolver
	emitter events.Emitter
	admin   common.Address
	custody common.Address
	nowFn   func() int64
	entered bool
}

// NewEngine creates a sale engine with a no-op emitter and the wall clock.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAssets configures the resolver for payment and sold assets.
func (e *Engine) SetAssets(assets AssetResolver) { e.assets = assets }

// SetAdmin configures the administrative principal.
func (e *Engine) SetAdmin(addr common.Address) { e.admin = addr }

// SetCustody configures the account holding the sold asset and acting as
// spender on payment assets.
func (e *Engine) SetCustody(addr common.Address) { e.custody = addr }

// Admin returns the administrative principal.
func (e *Engine) Admin() common.Address { return e.admin }

// Custody returns the engine custody account.
func (e *Engine) Custody() common.Address { return e.custody }

// SetNowFunc overrides the time source used by the engine. Passing nil
// restores the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(saleEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) enter() error {
	if e.entered {
		return ErrReentrant
	}
	e.entered = true
	return nil
}

func (e *Engine) exit() { e.entered = false }

func (e *Engine) config() (*Config, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, ok, err := e.state.SaleConfig()
	if err != nil {
		return nil, err
	}
	if !ok || cfg == nil {
		return nil, errNilConfig
	}
	return cfg.Clone(), nil
}

func (e *Engine) asset(id common.Address) (Asset, error) {
	if e.assets == nil {
		return nil, errNilAssets
	}
	return e.assets.Asset(id)
}

func (e *Engine) requireAdmin(caller common.Address) error {
	if e.admin == (common.Address{}) || caller != e.admin {
		return ErrNotAdmin
	}
	return nil
}

// Initialize installs the sale configuration. It may be repeated by the admin
// until the currently installed sale has started.
func (e *Engine) Initialize(caller common.Address, cfg *Config) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	current, ok, err := e.state.SaleConfig()
	if err != nil {
		return err
	}
	if ok && current != nil && e.now() >= current.SaleStart {
		return ErrStarted
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.state.SalePutConfig(cfg.Clone()); err != nil {
		return err
	}
	e.emit(NewConfiguredEvent(cfg, caller))
	return nil
}

func (e *Engine) update(caller common.Address, field, value string, mutate func(*Config)) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if e.now() >= cfg.SaleStart {
		return ErrStarted
	}
	mutate(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := e.state.SalePutConfig(cfg); err != nil {
		return err
	}
	e.emit(NewFieldUpdatedEvent(field, value, caller))
	return nil
}

// SetToken replaces the asset being sold.
func (e *Engine) SetToken(caller, token common.Address) error {
	return e.update(caller, FieldToken, token.Hex(), func(c *Config) { c.Token = token })
}

// SetWallet replaces the account that receives purchase payments.
func (e *Engine) SetWallet(caller, wallet common.Address) error {
	return e.update(caller, FieldWallet, wallet.Hex(), func(c *Config) { c.Wallet = wallet })
}

// SetSaleStart moves the opening of the purchase window.
func (e *Engine) SetSaleStart(caller common.Address, ts int64) error {
	return e.update(caller, FieldSaleStart, formatInt(ts), func(c *Config) { c.SaleStart = ts })
}

// SetSaleEnd moves the close of the purchase window.
func (e *Engine) SetSaleEnd(caller common.Address, ts int64) error {
	return e.update(caller, FieldSaleEnd, formatInt(ts), func(c *Config) { c.SaleEnd = ts })
}

// SetWithdrawalStart moves the vesting cliff.
func (e *Engine) SetWithdrawalStart(caller common.Address, ts int64) error {
	return e.update(caller, FieldWithdrawalStart, formatInt(ts), func(c *Config) { c.WithdrawalStart = ts })
}

// SetWithdrawPeriodDuration sets the length in seconds of one vesting period.
func (e *Engine) SetWithdrawPeriodDuration(caller common.Address, seconds int64) error {
	return e.update(caller, FieldWithdrawPeriodDuration, formatInt(seconds), func(c *Config) { c.WithdrawPeriodDuration = seconds })
}

// SetWithdrawPeriodNumber sets how many periods fully vest an entitlement.
func (e *Engine) SetWithdrawPeriodNumber(caller common.Address, n uint64) error {
	return e.update(caller, FieldWithdrawPeriodNumber, strconv.FormatUint(n, 10), func(c *Config) { c.WithdrawPeriodNumber = n })
}

// SetMinBuyValue sets the smallest accepted payment value.
func (e *Engine) SetMinBuyValue(caller common.Address, v *big.Int) error {
	return e.updateAmount(caller, FieldMinBuyValue, v, func(c *Config, x *big.Int) { c.MinBuyValue = x })
}

// SetMaxTokenAmountPerAddress caps the tokens one buyer may accumulate.
func (e *Engine) SetMaxTokenAmountPerAddress(caller common.Address, v *big.Int) error {
	return e.updateAmount(caller, FieldMaxTokenAmountPerAddress, v, func(c *Config, x *big.Int) { c.MaxTokenAmountPerAddress = x })
}

// SetExchangeRate sets tokens per payment unit, scaled by 10^18.
func (e *Engine) SetExchangeRate(caller common.Address, v *big.Int) error {
	return e.updateAmount(caller, FieldExchangeRate, v, func(c *Config, x *big.Int) { c.ExchangeRate = x })
}

// SetAmountToSell caps the aggregate amount sold.
func (e *Engine) SetAmountToSell(caller common.Address, v *big.Int) error {
	return e.updateAmount(caller, FieldAmountToSell, v, func(c *Config, x *big.Int) { c.AmountToSell = x })
}

// SetReferralRewardPercentage sets the referral bonus as a percentage of the purchased amount.
func (e *Engine) SetReferralRewardPercentage(caller common.Address, pct uint64) error {
	return e.update(caller, FieldReferralRewardPercentage, strconv.FormatUint(pct, 10), func(c *Config) { c.ReferralRewardPercentage = pct })
}

func (e *Engine) updateAmount(caller common.Address, field string, v *big.Int, set func(*Config, *big.Int)) error {
	if v == nil || v.Sign() < 0 {
		return ErrInvalidAmount
	}
	value := new(big.Int).Set(v)
	return e.update(caller, field, value.String(), func(c *Config) { set(c, value) })
}

// AuthorizePaymentCurrencies appends assets to the payment allow-list.
// Already authorized entries are accepted and left untouched.
func (e *Engine) AuthorizePaymentCurrencies(caller common.Address, assets []common.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	cfg, err := e.config()
	if err != nil {
		return err
	}
	if e.now() >= cfg.SaleStart {
		return ErrStarted
	}
	if _, err := NewRegistry(e.state).Authorize(assets); err != nil {
		return err
	}
	e.emit(NewPaymentCurrenciesAuthorizedEvent(assets))
	return nil
}

// BuyToken pays value of currency from buyer to the sale wallet and credits
// the resulting token amount to buyer, plus the referral bonus to referral
// when one is given. It returns the token amount credited to buyer.
func (e *Engine) BuyToken(buyer, currency common.Address, value *big.Int, referral common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	now := e.now()
	if now < cfg.SaleStart {
		return nil, ErrNotStarted
	}
	if now >= cfg.SaleEnd {
		return nil, ErrEnded
	}
	registry := NewRegistry(e.state)
	ok, err := registry.IsAuthorized(currency)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnauthorizedCurrency
	}
	if value == nil || value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	if value.Cmp(cfg.MinBuyValue) < 0 {
		return nil, ErrUnderMinimum
	}
	tokens, err := TokenAmount(value, cfg.ExchangeRate)
	if err != nil {
		return nil, err
	}
	ledger := NewLedger(e.state)
	if err := ledger.CheckSale(tokens, cfg.AmountToSell); err != nil {
		return nil, err
	}
	record, err := ledger.Record(buyer)
	if err != nil {
		return nil, err
	}
	if new(big.Int).Add(record.Claimable, tokens).Cmp(cfg.MaxTokenAmountPerAddress) > 0 {
		return nil, ErrAboveAddressCap
	}
	hasReferral := referral != (common.Address{})
	if hasReferral && referral == buyer {
		return nil, ErrInvalidReferral
	}
	bonus := big.NewInt(0)
	if hasReferral {
		if bonus, err = ReferralBonus(tokens, cfg.ReferralRewardPercentage); err != nil {
			return nil, err
		}
	}
	payment, err := e.asset(currency)
	if err != nil {
		return nil, err
	}
	if e.custody == (common.Address{}) {
		return nil, errNilCustody
	}

	if err := ledger.RecordSale(tokens, cfg.AmountToSell); err != nil {
		return nil, err
	}
	if _, err := ledger.Credit(buyer, tokens); err != nil {
		return nil, err
	}
	if hasReferral {
		if _, err := ledger.Credit(referral, bonus); err != nil {
			return nil, err
		}
	}

	if err := payment.TransferFrom(e.custody, buyer, cfg.Wallet, value); err != nil {
		return nil, err
	}
	e.emit(NewTokenBoughtEvent(buyer, currency, value, tokens, referral))
	return tokens, nil
}

// WithdrawToken releases the vested part of the caller's entitlement that has
// not been withdrawn yet and returns the released amount. Nothing to release
// is not an error.
func (e *Engine) WithdrawToken(caller common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	now := e.now()
	if now < cfg.WithdrawalStart {
		return nil, ErrBeforeCliff
	}
	ledger := NewLedger(e.state)
	record, err := ledger.Record(caller)
	if err != nil {
		return nil, err
	}
	entitled := cfg.Schedule().Withdrawable(now, record.Claimable)
	payable := new(big.Int).Sub(entitled, record.Withdrawn)
	if payable.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	sold, err := e.asset(cfg.Token)
	if err != nil {
		return nil, err
	}
	if e.custody == (common.Address{}) {
		return nil, errNilCustody
	}

	if _, err := ledger.RecordWithdrawal(caller, payable); err != nil {
		return nil, err
	}

	if err := sold.Transfer(e.custody, caller, payable); err != nil {
		return nil, err
	}
	e.emit(NewTokenWithdrewEvent(caller, payable))
	return payable, nil
}

// BurnRemainingTokens destroys the whole sold-asset balance held by the
// custody account once the sale has ended. Anyone may call it. A zero balance
// burns nothing and emits nothing.
func (e *Engine) BurnRemainingTokens(caller common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()

	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	if e.now() < cfg.SaleEnd {
		return nil, ErrNotEnded
	}
	if e.custody == (common.Address{}) {
		return nil, errNilCustody
	}
	sold, err := e.asset(cfg.Token)
	if err != nil {
		return nil, err
	}
	balance, err := sold.BalanceOf(e.custody)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	burner, ok := sold.(Burner)
	if !ok {
		return nil, errNotBurnable
	}
	if err := burner.Burn(e.custody, balance); err != nil {
		return nil, err
	}
	e.emit(NewRemainingTokensBurntEvent(balance, caller))
	return cloneBigInt(balance), nil
}

// Settings returns the configuration together with the sold amount.
func (e *Engine) Settings() (*Settings, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	sold, err := NewLedger(e.state).SoldAmount()
	if err != nil {
		return nil, err
	}
	return &Settings{Config: *cfg, SoldAmount: sold}, nil
}

// IsAuthorizedPaymentCurrency reports whether asset is accepted for payment.
func (e *Engine) IsAuthorizedPaymentCurrency(asset common.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return NewRegistry(e.state).IsAuthorized(asset)
}

// PaymentCurrencies lists the accepted payment assets.
func (e *Engine) PaymentCurrencies() ([]common.Address, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return NewRegistry(e.state).List()
}

// ClaimableAmount returns the total entitlement of account.
func (e *Engine) ClaimableAmount(account common.Address) (*big.Int, error) {
	record, err := e.record(account)
	if err != nil {
		return nil, err
	}
	return record.Claimable, nil
}

// WithdrewAmount returns how much of the entitlement account has withdrawn.
func (e *Engine) WithdrewAmount(account common.Address) (*big.Int, error) {
	record, err := e.record(account)
	if err != nil {
		return nil, err
	}
	return record.Withdrawn, nil
}

// WithdrawableAmount returns what WithdrawToken would pay account right now.
func (e *Engine) WithdrawableAmount(account common.Address) (*big.Int, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	record, err := e.record(account)
	if err != nil {
		return nil, err
	}
	payable := new(big.Int).Sub(cfg.Schedule().Withdrawable(e.now(), record.Claimable), record.Withdrawn)
	if payable.Sign() < 0 {
		return big.NewInt(0), nil
	}
	return payable, nil
}

// SoldAmount returns the aggregate amount sold.
func (e *Engine) SoldAmount() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return NewLedger(e.state).SoldAmount()
}

func (e *Engine) record(account common.Address) (*PurchaserRecord, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return NewLedger(e.state).Record(account)
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }
