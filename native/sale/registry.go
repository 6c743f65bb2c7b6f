package sale

import (
	"github.com/ethereum/go-ethereum/common"
)

type registryState interface {
	SaleCurrencyAuthorized(asset common.Address) (bool, error)
	SaleAuthorizeCurrency(asset common.Address) error
	SaleCurrencies() ([]common.Address, error)
}

// Registry is the append-only allow-list of payment assets.
type Registry struct {
	state registryState
}

// NewRegistry binds a registry to its state backend.
func NewRegistry(state registryState) *Registry {
	return &Registry{state: state}
}

// Authorize appends the assets to the allow-list and returns the ones that
// were not already present, in input order.
func (r *Registry) Authorize(assets []common.Address) ([]common.Address, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	for _, asset := range assets {
		if asset == (common.Address{}) {
			return nil, ErrZeroCurrency
		}
	}
	added := make([]common.Address, 0, len(assets))
	for _, asset := range assets {
		ok, err := r.state.SaleCurrencyAuthorized(asset)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		if err := r.state.SaleAuthorizeCurrency(asset); err != nil {
			return nil, err
		}
		added = append(added, asset)
	}
	return added, nil
}

// IsAuthorized reports allow-list membership.
func (r *Registry) IsAuthorized(asset common.Address) (bool, error) {
	if r == nil || r.state == nil {
		return false, errNilState
	}
	return r.state.SaleCurrencyAuthorized(asset)
}

// List returns the allow-list in authorization order.
func (r *Registry) List() ([]common.Address, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	return r.state.SaleCurrencies()
}
