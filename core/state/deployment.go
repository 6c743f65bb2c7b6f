package state

import (
	"github.com/ethereum/go-ethereum/common"
)

var deploymentKey = []byte("deployment")

// Deployment records the principals fixed when the sale was deployed.
type Deployment struct {
	Admin   common.Address
	Custody common.Address
	Token   common.Address
}

// Deployment returns the recorded deployment, if any.
func (tx *Tx) Deployment() (*Deployment, bool, error) {
	d := new(Deployment)
	ok, err := tx.KVGet(deploymentKey, d)
	if err != nil || !ok {
		return nil, false, err
	}
	return d, true, nil
}

// PutDeployment records the deployment principals.
func (tx *Tx) PutDeployment(d *Deployment) error {
	return tx.KVPut(deploymentKey, d)
}
