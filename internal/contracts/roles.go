// Package contracts describes the bridge contracts: their roles, dependency
// order and compiled artifacts.
package contracts

import (
	"fmt"
	"slices"
)

// Contract names.
const (
	AddressManager                  = "AddressManager"
	CrossChainChannel               = "CrossChainChannel"
	L1Rollup                        = "L1Rollup"
	L1Escrow                        = "L1Escrow"
	L2Rollup                        = "L2Rollup"
	L2Escrow                        = "L2Escrow"
	G1G2ProxyAdmin                  = "G1G2ProxyAdmin"
	G1G2TransparentUpgradeableProxy = "G1G2TransparentUpgradeableProxy"
)

// Library names.
const (
	LibPropose         = "LibPropose"
	LibProve           = "LibProve"
	LibOnChain         = "LibOnChain"
	TransactionLibrary = "TransactionLibrary"
	ReceiptLibrary     = "ReceiptLibrary"
)

// AddressManager keys.
const (
	KeyRollup            = "rollup"
	KeyCrossChainChannel = "cross_chain_channel"
	KeyEscrow            = "escrow"
)

// Role is one contract of a release. DependsOn lists the libraries that must
// be deployed, and linked into the bytecode, before it.
type Role struct {
	Name      string
	DependsOn []string
}

// RoleSet is an ordered list of roles.
type RoleSet []Role

// L1Roles is every logic contract of an L1 release, libraries first.
var L1Roles = RoleSet{
	{Name: ReceiptLibrary},
	{Name: TransactionLibrary},
	{Name: LibPropose},
	{Name: LibProve, DependsOn: []string{ReceiptLibrary, TransactionLibrary}},
	{Name: LibOnChain},
	{Name: AddressManager},
	{Name: L1Rollup, DependsOn: []string{LibPropose, LibProve, LibOnChain}},
	{Name: CrossChainChannel},
	{Name: L1Escrow},
}

// L2Roles is every logic contract of an L2 release.
var L2Roles = RoleSet{
	{Name: AddressManager},
	{Name: L2Rollup},
	{Name: CrossChainChannel},
	{Name: L2Escrow},
}

// L1UpgradeSet and L2UpgradeSet are the proxied roles compared during an
// upgrade. Libraries are linked into their dependents and never proxied.
var (
	L1UpgradeSet = []string{AddressManager, L1Rollup, CrossChainChannel, L1Escrow}
	L2UpgradeSet = []string{AddressManager, L2Rollup, CrossChainChannel, L2Escrow}
)

// Names returns the role names in declaration order.
func (rs RoleSet) Names() []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return names
}

// Ordered returns the roles in dependency order. Roles without a pending
// dependency keep their declaration order, so the result is stable.
func (rs RoleSet) Ordered() ([]Role, error) {
	index := make(map[string]int, len(rs))
	for i, r := range rs {
		if _, dup := index[r.Name]; dup {
			return nil, fmt.Errorf("duplicate role %s", r.Name)
		}
		index[r.Name] = i
	}

	indegree := make([]int, len(rs))
	dependents := make([][]int, len(rs))
	for i, r := range rs {
		for _, dep := range r.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("role %s depends on unknown role %s", r.Name, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var ready []int
	for i := range rs {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]Role, 0, len(rs))
	for len(ready) > 0 {
		slices.Sort(ready)
		i := ready[0]
		ready = ready[1:]
		out = append(out, rs[i])
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	if len(out) != len(rs) {
		return nil, fmt.Errorf("role dependency cycle")
	}
	return out, nil
}
