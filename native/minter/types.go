package minter

import (
	"github.com/ethereum/go-ethereum/common"
)

// GraceDelay is the number of seconds between launching a minter update and
// the earliest time it can be executed.
const GraceDelay int64 = 7 * 24 * 60 * 60

// PendingUpdate is an announced change of the minter.
type PendingUpdate struct {
	NewMinter   common.Address
	EffectiveAt int64
	MustExecute bool
}

// State is the controller record kept per controlled asset.
type State struct {
	CurrentMinter common.Address
	Pending       PendingUpdate
}

// Clone returns a copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return &State{}
	}
	clone := *s
	return &clone
}

// HasPending reports whether an announced update still waits for execution.
func (s *State) HasPending() bool {
	return s != nil && s.Pending.MustExecute
}
