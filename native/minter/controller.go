package minter

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"crowdsale/core/events"
	"crowdsale/core/types"
)

type controllerState interface {
	MinterState(asset common.Address) (*State, bool, error)
	MinterPutState(asset common.Address, state *State) error
	HasCode(addr common.Address) (bool, error)
}

// Supply is the privileged supply surface of the controlled asset.
type Supply interface {
	Mint(to common.Address, amount *big.Int) error
	Burn(holder common.Address, amount *big.Int) error
}

// Controller gates mint and burn on a single asset behind a minter identity
// that can only be replaced after GraceDelay has elapsed since the change was
// announced.
type Controller struct {
	state   controllerState
	supply  Supply
	emitter events.Emitter
	asset   common.Address
	admin   common.Address
	nowFn   func() int64
}

// NewController creates a controller for asset with a no-op emitter.
func NewController(asset common.Address) *Controller {
	return &Controller{
		asset:   asset,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the controller.
func (c *Controller) SetState(state controllerState) { c.state = state }

// SetSupply configures the supply surface of the controlled asset.
func (c *Controller) SetSupply(supply Supply) { c.supply = supply }

// SetAdmin configures the administrative principal.
func (c *Controller) SetAdmin(addr common.Address) { c.admin = addr }

// Asset returns the controlled asset.
func (c *Controller) Asset() common.Address { return c.asset }

// SetNowFunc overrides the time source. Passing nil restores the wall clock.
func (c *Controller) SetNowFunc(now func() int64) {
	if now == nil {
		c.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	c.nowFn = now
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (c *Controller) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

func (c *Controller) emit(event *types.Event) {
	if c == nil || c.emitter == nil || event == nil {
		return
	}
	c.emitter.Emit(minterEvent{evt: event})
}

func (c *Controller) now() int64 {
	if c == nil || c.nowFn == nil {
		return time.Now().Unix()
	}
	return c.nowFn()
}

func (c *Controller) load() (*State, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	state, ok, err := c.state.MinterState(c.asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &State{}, nil
	}
	return state.Clone(), nil
}

// State returns a snapshot of the current minter and pending update.
func (c *Controller) State() (*State, error) {
	return c.load()
}

// CurrentMinter returns the active minter; the zero address means none.
func (c *Controller) CurrentMinter() (common.Address, error) {
	state, err := c.load()
	if err != nil {
		return common.Address{}, err
	}
	return state.CurrentMinter, nil
}

// PendingUpdate returns the last announced update.
func (c *Controller) PendingUpdate() (PendingUpdate, error) {
	state, err := c.load()
	if err != nil {
		return PendingUpdate{}, err
	}
	return state.Pending, nil
}

// LaunchUpdate announces newMinter. It becomes executable GraceDelay seconds
// later.
func (c *Controller) LaunchUpdate(caller, newMinter common.Address) (*PendingUpdate, error) {
	if c == nil || c.state == nil {
		return nil, errNilState
	}
	if c.admin == (common.Address{}) || caller != c.admin {
		return nil, ErrNotAdmin
	}
	hasCode, err := c.state.HasCode(newMinter)
	if err != nil {
		return nil, err
	}
	if !hasCode {
		return nil, ErrNotContract
	}
	state, err := c.load()
	if err != nil {
		return nil, err
	}
	if state.HasPending() {
		return nil, ErrPendingUpdate
	}
	state.Pending = PendingUpdate{
		NewMinter:   newMinter,
		EffectiveAt: c.now() + GraceDelay,
		MustExecute: true,
	}
	if err := c.state.MinterPutState(c.asset, state); err != nil {
		return nil, err
	}
	c.emit(NewUpdateLaunchedEvent(c.asset, newMinter, state.Pending.EffectiveAt))
	pending := state.Pending
	return &pending, nil
}

// ExecuteUpdate activates the pending minter once its grace period is over.
func (c *Controller) ExecuteUpdate(caller common.Address) (common.Address, error) {
	if c == nil || c.state == nil {
		return common.Address{}, errNilState
	}
	if c.admin == (common.Address{}) || caller != c.admin {
		return common.Address{}, ErrNotAdmin
	}
	state, err := c.load()
	if err != nil {
		return common.Address{}, err
	}
	if state.Pending.NewMinter == (common.Address{}) {
		return common.Address{}, ErrNoPendingUpdate
	}
	if !state.Pending.MustExecute {
		return common.Address{}, ErrAlreadyExecuted
	}
	if c.now() < state.Pending.EffectiveAt {
		return common.Address{}, ErrGracePeriod
	}
	state.CurrentMinter = state.Pending.NewMinter
	state.Pending.MustExecute = false
	if err := c.state.MinterPutState(c.asset, state); err != nil {
		return common.Address{}, err
	}
	c.emit(NewUpdateExecutedEvent(c.asset, state.CurrentMinter))
	return state.CurrentMinter, nil
}

// Authorize fails unless caller is the current minter.
func (c *Controller) Authorize(caller common.Address) error {
	state, err := c.load()
	if err != nil {
		return err
	}
	if state.CurrentMinter == (common.Address{}) || caller != state.CurrentMinter {
		return ErrNotMinter
	}
	return nil
}

// MintFromController mints amount to recipient on behalf of the minter.
func (c *Controller) MintFromController(caller, recipient common.Address, amount *big.Int) error {
	if err := c.Authorize(caller); err != nil {
		return err
	}
	if c.supply == nil {
		return errNilSupply
	}
	if err := c.supply.Mint(recipient, amount); err != nil {
		return err
	}
	c.emit(newSupplyEvent(EventTypeMinted, c.asset, recipient, amount))
	return nil
}

// BurnFromController burns amount held by holder on behalf of the minter.
func (c *Controller) BurnFromController(caller, holder common.Address, amount *big.Int) error {
	if err := c.Authorize(caller); err != nil {
		return err
	}
	if c.supply == nil {
		return errNilSupply
	}
	if err := c.supply.Burn(holder, amount); err != nil {
		return err
	}
	c.emit(newSupplyEvent(EventTypeBurned, c.asset, holder, amount))
	return nil
}
