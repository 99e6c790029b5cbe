package roomversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_Table(t *testing.T) {
	tests := []struct {
		id    string
		check func(t *testing.T, r Rules)
	}{
		{"1", func(t *testing.T, r Rules) {
			assert.Equal(t, AlgorithmV1, r.StateRes.Algorithm)
			assert.True(t, r.Auth.SpecialCaseRedaction)
			assert.False(t, r.Resolvable())
		}},
		{"2", func(t *testing.T, r Rules) {
			assert.Equal(t, AlgorithmV2, r.StateRes.Algorithm)
			assert.True(t, r.Auth.SpecialCaseRedaction)
			assert.True(t, r.Auth.SpecialCaseAliases)
		}},
		{"3", func(t *testing.T, r Rules) {
			assert.False(t, r.Auth.SpecialCaseRedaction)
			assert.True(t, r.Auth.SpecialCaseAliases)
		}},
		{"6", func(t *testing.T, r Rules) {
			assert.False(t, r.Auth.SpecialCaseAliases)
			assert.True(t, r.Auth.LimitNotificationsPowerLevels)
			assert.False(t, r.Auth.Knocking)
		}},
		{"7", func(t *testing.T, r Rules) { assert.True(t, r.Auth.Knocking) }},
		{"8", func(t *testing.T, r Rules) {
			assert.True(t, r.Auth.RestrictedJoinRule)
			assert.False(t, r.Auth.KnockRestrictedJoinRule)
		}},
		{"10", func(t *testing.T, r Rules) {
			assert.True(t, r.Auth.KnockRestrictedJoinRule)
			assert.True(t, r.Auth.IntegerPowerLevels)
			assert.False(t, r.Auth.UseRoomCreateSender)
		}},
		{"11", func(t *testing.T, r Rules) {
			assert.True(t, r.Auth.UseRoomCreateSender)
			assert.False(t, r.Auth.ExplicitlyPrivilegeRoomCreators)
			assert.False(t, r.StateRes.BeginWithEmptyStateMap)
		}},
		{"12", func(t *testing.T, r Rules) {
			assert.True(t, r.Auth.ExplicitlyPrivilegeRoomCreators)
			assert.True(t, r.Auth.AdditionalRoomCreators)
			assert.True(t, r.Auth.RoomCreateEventIDAsRoomID)
			assert.True(t, r.StateRes.BeginWithEmptyStateMap)
			assert.True(t, r.StateRes.ConsiderConflictedSubgraph)
		}},
	}
	for _, tt := range tests {
		t.Run("v"+tt.id, func(t *testing.T) {
			r, err := Lookup(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.id, r.ID)
			tt.check(t, r)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("13")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestLookup_ReturnsCopies(t *testing.T) {
	r := MustLookup("10")
	r.Auth.Knocking = false
	assert.True(t, MustLookup("10").Auth.Knocking)
}

func TestKnown_NumericOrder(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}, Known())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	custom := MustLookup("11")
	custom.ID = "org.example.v11"
	require.NoError(t, reg.Register(custom))

	got, err := reg.Lookup("org.example.v11")
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	_, err = reg.Lookup("10")
	require.NoError(t, err)

	assert.Error(t, reg.Register(custom), "duplicate id")
	shadow := custom
	shadow.ID = "10"
	assert.Error(t, reg.Register(shadow), "built-in id")

	known := reg.Known()
	assert.Equal(t, "org.example.v11", known[len(known)-1])
}
