package registry

import (
	"fmt"
	"maps"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
)

// Layer identifies which side of the bridge a record belongs to.
type Layer string

const (
	// LayerL1 covers contracts deployed on the settlement chain.
	LayerL1 Layer = "l1"
	// LayerL2 covers contracts living on the rollup chain.
	LayerL2 Layer = "l2"
)

// Scope is the chain a logic contract or bundle is keyed under. L1 records
// carry only the L1 chain id; L2 records carry both, since an L2 chain id is
// only unique below its L1.
type Scope struct {
	L1ChainID uint64 `json:"L1ChainId"`
	L2ChainID uint64 `json:"L2ChainId,omitempty"`
}

// L1Scope returns the scope of an L1 chain.
func L1Scope(l1ChainID uint64) Scope {
	return Scope{L1ChainID: l1ChainID}
}

// L2Scope returns the scope of an L2 chain settled on l1ChainID.
func L2Scope(l1ChainID, l2ChainID uint64) Scope {
	return Scope{L1ChainID: l1ChainID, L2ChainID: l2ChainID}
}

// Layer reports the layer this scope addresses.
func (s Scope) Layer() Layer {
	if s.L2ChainID == 0 {
		return LayerL1
	}
	return LayerL2
}

// Validate rejects scopes without an L1 chain id.
func (s Scope) Validate() error {
	if s.L1ChainID == 0 {
		return fmt.Errorf("%w: l1 chain id is required", ErrInvalidRecord)
	}
	return nil
}

func (s Scope) String() string {
	if s.Layer() == LayerL1 {
		return fmt.Sprintf("l1:%d", s.L1ChainID)
	}
	return fmt.Sprintf("l2:%d:%d", s.L1ChainID, s.L2ChainID)
}

// LogicRecord is one deployed implementation contract, addressed by the hash
// of its deployed bytecode.
type LogicRecord struct {
	Scope
	CodeHash     common.Hash    `json:"CodeHash"`
	Address      common.Address `json:"Address"`
	ContractName string         `json:"ContractName"`
}

func (r *LogicRecord) validate() error {
	if err := r.Scope.Validate(); err != nil {
		return err
	}
	if r.CodeHash == (common.Hash{}) {
		return fmt.Errorf("%w: code hash is required", ErrInvalidRecord)
	}
	if r.ContractName == "" {
		return fmt.Errorf("%w: contract name is required", ErrInvalidRecord)
	}
	return nil
}

// VersionedBundle maps every contract role of a release to the logic record
// implementing it. Bundles are immutable once sealed.
type VersionedBundle struct {
	Scope
	Version uint64                 `json:"Version"`
	Roles   map[string]LogicRecord `json:"Roles"`
}

// Logic returns the record bound to role.
func (b *VersionedBundle) Logic(role string) (LogicRecord, bool) {
	rec, ok := b.Roles[role]
	return rec, ok
}

// Equal reports whether both bundles seal the same content at the same key.
func (b *VersionedBundle) Equal(o *VersionedBundle) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.Scope == o.Scope && b.Version == o.Version && maps.Equal(b.Roles, o.Roles)
}

// Missing returns the roles from required that the bundle does not bind.
func (b *VersionedBundle) Missing(required []string) []string {
	var missing []string
	for _, role := range required {
		if _, ok := b.Roles[role]; !ok {
			missing = append(missing, role)
		}
	}
	return missing
}

func (b *VersionedBundle) validate() error {
	if err := b.Scope.Validate(); err != nil {
		return err
	}
	if len(b.Roles) == 0 {
		return fmt.Errorf("%w: bundle has no roles", ErrInvalidRecord)
	}
	for role, rec := range b.Roles {
		if rec.Scope != b.Scope {
			return fmt.Errorf("%w: role %s is bound to %s, bundle is %s", ErrInvalidRecord, role, rec.Scope, b.Scope)
		}
	}
	return nil
}

func (b *VersionedBundle) clone() *VersionedBundle {
	c := *b
	c.Roles = maps.Clone(b.Roles)
	return &c
}

// ProxySet maps a contract role to the proxy that fronts it.
type ProxySet map[string]common.Address

// RollupInstance binds an L1/L2 chain pair to its proxies and the bundle
// version those proxies currently delegate to.
type RollupInstance struct {
	L1ChainID uint64   `json:"L1ChainId"`
	L2ChainID uint64   `json:"L2ChainId"`
	Version   uint64   `json:"Version"`
	L1Proxies ProxySet `json:"L1Proxies"`
	L2Proxies ProxySet `json:"L2Proxies"`
}

// L1Scope returns the scope of the instance's L1 contracts.
func (r *RollupInstance) L1Scope() Scope { return L1Scope(r.L1ChainID) }

// L2Scope returns the scope of the instance's L2 contracts.
func (r *RollupInstance) L2Scope() Scope { return L2Scope(r.L1ChainID, r.L2ChainID) }

// Proxies returns the proxy set for layer.
func (r *RollupInstance) Proxies(layer Layer) ProxySet {
	if layer == LayerL1 {
		return r.L1Proxies
	}
	return r.L2Proxies
}

// Equal reports whether two instances hold identical content.
func (r *RollupInstance) Equal(o *RollupInstance) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.L1ChainID == o.L1ChainID && r.L2ChainID == o.L2ChainID && r.Version == o.Version &&
		maps.Equal(r.L1Proxies, o.L1Proxies) && maps.Equal(r.L2Proxies, o.L2Proxies)
}

func (r *RollupInstance) validate() error {
	if r.L1ChainID == 0 || r.L2ChainID == 0 {
		return fmt.Errorf("%w: both chain ids are required", ErrInvalidRecord)
	}
	return nil
}

func (r *RollupInstance) clone() *RollupInstance {
	c := *r
	c.L1Proxies = maps.Clone(r.L1Proxies)
	c.L2Proxies = maps.Clone(r.L2Proxies)
	return &c
}

// GenesisRecord is the persisted L2 genesis of a rollup instance. Its hash is
// embedded into the L1 rollup contract and must never drift.
type GenesisRecord struct {
	L1ChainID uint64        `json:"L1ChainId"`
	L2ChainID uint64        `json:"L2ChainId"`
	Hash      common.Hash   `json:"Hash"`
	Genesis   *core.Genesis `json:"Genesis"`
}

func (g *GenesisRecord) validate() error {
	if g.L1ChainID == 0 || g.L2ChainID == 0 {
		return fmt.Errorf("%w: both chain ids are required", ErrInvalidRecord)
	}
	if g.Genesis == nil {
		return fmt.Errorf("%w: genesis is required", ErrInvalidRecord)
	}
	return nil
}
