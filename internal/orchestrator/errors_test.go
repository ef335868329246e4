package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/chain"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient rpc", fmt.Errorf("deploy X: %w", chain.ErrTransient), true},
		{"reverted", fmt.Errorf("deploy X: %w", chain.ErrReverted), false},
		{"chain busy", fmt.Errorf("%w: l1:5", ErrChainBusy), true},
		{"store persist", fmt.Errorf("%w: disk full", registry.ErrStorePersist), true},
		{"conflict", registry.ErrConflict, false},
		{"version order", ErrVersionOrder, false},
		{"incomplete", ErrIncompleteDeployment, false},
		{"canceled", fmt.Errorf("%w: %w", chain.ErrTransient, context.Canceled), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}
