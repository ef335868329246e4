package orchestrator

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/chain"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

var (
	// ErrIncompleteDeployment is returned when a release does not resolve
	// every required role after deployment. Nothing is sealed.
	ErrIncompleteDeployment = errors.New("incomplete deployment")
	// ErrVersionOrder is returned when an upgrade does not move forward.
	ErrVersionOrder = errors.New("target version must be higher than the current version")
	// ErrBundleNotReady is returned when a required bundle is not sealed and
	// automatic deployment is disabled.
	ErrBundleNotReady = errors.New("bundle not deployed")
	// ErrChainBusy is returned when another run holds the lock of a chain.
	ErrChainBusy = errors.New("chain is locked by another run")
	// ErrRollupNotFound is returned when upgrading an unknown rollup.
	ErrRollupNotFound = errors.New("rollup not provisioned")
	// ErrHigherVersionDeployed is returned when provisioning below the
	// version already deployed.
	ErrHigherVersionDeployed = errors.New("higher version already deployed")
	// ErrUseUpgrade is returned when provisioning above the version already
	// deployed.
	ErrUseUpgrade = errors.New("rollup already deployed at a lower version, use upgrade")
)

// Retryable reports whether err is a transient failure after which the run
// can be repeated as is.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, chain.ErrTransient) ||
		errors.Is(err, ErrChainBusy) ||
		errors.Is(err, registry.ErrStorePersist) ||
		pgconn.SafeToRetry(err)
}
