package contracts

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleSet_OrderedL1(t *testing.T) {
	ordered, err := L1Roles.Ordered()
	require.NoError(t, err)
	names := RoleSet(ordered).Names()

	require.Len(t, names, len(L1Roles))
	for _, r := range L1Roles {
		for _, dep := range r.DependsOn {
			assert.Less(t, slices.Index(names, dep), slices.Index(names, r.Name), "%s before %s", dep, r.Name)
		}
	}
	// Declaration order is already topological, so it is kept.
	assert.Equal(t, L1Roles.Names(), names)
}

func TestRoleSet_OrderedReordersDependents(t *testing.T) {
	rs := RoleSet{
		{Name: "Contract", DependsOn: []string{"Lib"}},
		{Name: "Other"},
		{Name: "Lib"},
	}
	ordered, err := rs.Ordered()
	require.NoError(t, err)
	assert.Equal(t, []string{"Other", "Lib", "Contract"}, RoleSet(ordered).Names())
}

func TestRoleSet_OrderedErrors(t *testing.T) {
	tests := []struct {
		name string
		rs   RoleSet
		want string
	}{
		{"unknown dependency", RoleSet{{Name: "A", DependsOn: []string{"B"}}}, "unknown role B"},
		{"cycle", RoleSet{{Name: "A", DependsOn: []string{"B"}}, {Name: "B", DependsOn: []string{"A"}}}, "cycle"},
		{"duplicate", RoleSet{{Name: "A"}, {Name: "A"}}, "duplicate role A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rs.Ordered()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUpgradeSetsAreRoles(t *testing.T) {
	for _, role := range L1UpgradeSet {
		assert.Contains(t, L1Roles.Names(), role)
	}
	for _, role := range L2UpgradeSet {
		assert.Contains(t, L2Roles.Names(), role)
	}
}
