package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roomstate/internal/roomversion"
)

func TestVersionsCommand_JSON(t *testing.T) {
	out, err := execute(t, "versions", "--format", "json")
	require.NoError(t, err)

	var result VersionsResult
	decodeData(t, out, &result)
	require.Len(t, result.Versions, 12)

	v1 := result.Versions[0]
	assert.Equal(t, "1", v1.ID)
	assert.Equal(t, 1, v1.Algorithm)
	assert.False(t, v1.Resolvable)

	v12 := result.Versions[11]
	assert.Equal(t, "12", v12.ID)
	assert.True(t, v12.Resolvable)
	assert.Contains(t, v12.Features, "consider_conflicted_state_subgraph")
	assert.Contains(t, v12.Features, "additional_room_creators")
}

func TestVersionsCommand_Text(t *testing.T) {
	out, err := execute(t, "versions", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "state res v1")
	assert.Contains(t, out, "knocking, restricted_join_rule")
}

func TestDescribeVersion(t *testing.T) {
	info := describeVersion(roomversion.MustLookup("7"))
	assert.Equal(t, "7", info.ID)
	assert.True(t, info.Stable)
	assert.Equal(t, []string{"strict_canonical_json", "limit_notifications_power_levels", "knocking"}, info.Features)
}
