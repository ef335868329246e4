package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
)

func TestEIP1967Slots(t *testing.T) {
	derive := func(label string) common.Hash {
		h := new(big.Int).SetBytes(crypto.Keccak256([]byte(label)))
		return common.BigToHash(h.Sub(h, big.NewInt(1)))
	}
	assert.Equal(t, derive("eip1967.proxy.implementation"), ImplementationSlot)
	assert.Equal(t, derive("eip1967.proxy.admin"), AdminSlot)
}
