package core

import (
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	errs "crowdsale/core/errors"
	"crowdsale/core/state"
	"crowdsale/native/minter"
	"crowdsale/native/sale"
	"crowdsale/native/token"
)

var (
	ErrNotDeployed     = errs.New(errs.ErrPhase, "core: sale not deployed")
	ErrAlreadyDeployed = errs.New(errs.ErrPhase, "core: sale already deployed")
	ErrNotAdmin        = errs.New(errs.ErrAuthorization, "core: caller is not the admin")

	errNilManager = errors.New("core: state manager not configured")
)

// Observer receives the outcome of every state-changing operation.
type Observer interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
	ObserveAmount(op string, asset common.Address, amount *big.Int)
}

// Runtime executes sale, minter and asset operations, each as one state
// transaction. It is safe for concurrent use once deployed: the engines are
// rebound to the current transaction under the state manager lock.
type Runtime struct {
	state      *state.Manager
	sale       *sale.Engine
	minter     *minter.Controller
	deployment *state.Deployment
	nowFn      func() int64
	logger     *slog.Logger
	observer   Observer
}

// NewRuntime creates a runtime over manager. Load or Deploy must be called
// before any sale operation.
func NewRuntime(manager *state.Manager) *Runtime {
	return &Runtime{
		state:  manager,
		sale:   sale.NewEngine(),
		nowFn:  func() int64 { return time.Now().Unix() },
		logger: slog.Default(),
	}
}

// SetNowFunc overrides the time source shared by every engine. Passing nil
// restores the wall clock.
func (r *Runtime) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	r.nowFn = now
	r.sale.SetNowFunc(now)
	if r.minter != nil {
		r.minter.SetNowFunc(now)
	}
}

// SetLogger configures the operation logger.
func (r *Runtime) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.logger = logger
}

// SetObserver configures the metrics observer.
func (r *Runtime) SetObserver(observer Observer) { r.observer = observer }

// Now returns the runtime clock.
func (r *Runtime) Now() int64 { return r.nowFn() }

// Deployment returns the recorded deployment principals.
func (r *Runtime) Deployment() (state.Deployment, error) {
	var out state.Deployment
	err := r.view(func(*state.Tx) error {
		out = *r.deployment
		return nil
	})
	return out, err
}

// Load restores the deployment recorded in state.
func (r *Runtime) Load() error {
	if r.state == nil {
		return errNilManager
	}
	return r.state.View(func(tx *state.Tx) error {
		d, ok, err := tx.Deployment()
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotDeployed
		}
		r.install(d)
		return nil
	})
}

func (r *Runtime) install(d *state.Deployment) {
	r.deployment = d
	r.sale.SetAdmin(d.Admin)
	r.sale.SetCustody(d.Custody)
	r.sale.SetNowFunc(r.nowFn)
	r.minter = minter.NewController(d.Token)
	r.minter.SetAdmin(d.Admin)
	r.minter.SetNowFunc(r.nowFn)
}

type assetResolver struct {
	tx *state.Tx
}

func (a assetResolver) Asset(id common.Address) (sale.Asset, error) {
	return a.ledger(id)
}

func (a assetResolver) ledger(id common.Address) (*token.Ledger, error) {
	ledger, err := token.Open(a.tx, id)
	if err != nil {
		return nil, err
	}
	ledger.SetEmitter(a.tx)
	return ledger, nil
}

func (r *Runtime) bind(tx *state.Tx) error {
	if r.deployment == nil {
		return ErrNotDeployed
	}
	assets := assetResolver{tx: tx}
	r.sale.SetState(tx)
	r.sale.SetAssets(assets)
	r.sale.SetEmitter(tx)
	r.minter.SetState(tx)
	r.minter.SetEmitter(tx)
	r.minter.SetSupply(nil)
	if supply, err := assets.ledger(r.deployment.Token); err == nil {
		r.minter.SetSupply(supply)
	}
	return nil
}

func (r *Runtime) update(op string, fn func(tx *state.Tx) error) error {
	if r.state == nil {
		return errNilManager
	}
	start := time.Now()
	err := r.state.Update(func(tx *state.Tx) error {
		if err := r.bind(tx); err != nil {
			return err
		}
		return fn(tx)
	})
	elapsed := time.Since(start)
	if r.observer != nil {
		r.observer.ObserveOperation(op, err, elapsed)
	}
	if err != nil {
		r.logger.Warn("operation rejected", "op", op, "kind", errs.KindName(err), "error", err)
		return err
	}
	r.logger.Debug("operation applied", "op", op, "elapsed", elapsed)
	return nil
}

func (r *Runtime) view(fn func(tx *state.Tx) error) error {
	if r.state == nil {
		return errNilManager
	}
	return r.state.View(func(tx *state.Tx) error {
		if err := r.bind(tx); err != nil {
			return err
		}
		return fn(tx)
	})
}

func (r *Runtime) observeAmount(op string, asset common.Address, amount *big.Int) {
	if r.observer != nil && amount != nil && amount.Sign() > 0 {
		r.observer.ObserveAmount(op, asset, amount)
	}
}

func (r *Runtime) requireAdmin(caller common.Address) error {
	if r.deployment == nil {
		return ErrNotDeployed
	}
	if caller != r.deployment.Admin {
		return ErrNotAdmin
	}
	return nil
}
