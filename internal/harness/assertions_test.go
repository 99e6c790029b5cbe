package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roomstate/internal/event"
	"github.com/roach88/roomstate/internal/roomversion"
	"github.com/roach88/roomstate/internal/testutil"
)

func growTestdata(t *testing.T, name string) *Replay {
	t.Helper()
	scenario := loadTestdata(t, name)
	replay, err := Grow(context.Background(), scenario, roomversion.MustLookup(scenario.RoomVersion), testutil.DiscardLogger())
	require.NoError(t, err)
	return replay
}

func TestAssertFinalState(t *testing.T) {
	replay := growTestdata(t, "topic_reset")

	assert.NoError(t, assertFinalState(replay, Assertion{Type: AssertFinalState, Events: []string{"T1", "MB", "PA"}}))

	err := assertFinalState(replay, Assertion{Type: AssertFinalState, Events: []string{"T2", "MB", "PA"}})
	require.Error(t, err)
	var assertErr *AssertionError
	require.True(t, errors.As(err, &assertErr))
	assert.Equal(t, AssertFinalState, assertErr.Type)
	assert.Contains(t, assertErr.Expected, "m.room.topic|=T2")
	assert.Contains(t, assertErr.Actual, "m.room.topic|=T1")
	assert.Contains(t, err.Error(), "Full trace:")
}

func TestAssertFinalState_ExpectedUnchangedSlot(t *testing.T) {
	replay := growTestdata(t, "join_rule_evasion")

	// IMA did not change, but naming it keeps its slot in the comparison.
	assert.NoError(t, assertFinalState(replay, Assertion{Events: []string{"JR", "IMA"}}))
}

func TestAssertFinalState_UnknownEvent(t *testing.T) {
	replay := growTestdata(t, "join_rule_evasion")

	err := assertFinalState(replay, Assertion{Events: []string{"NOPE"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "never replayed")
}

func TestAssertStateContains(t *testing.T) {
	replay := growTestdata(t, "ban_with_auth_chains")

	assert.NoError(t, assertStateContains(replay, Assertion{Event: "MB"}))

	err := assertStateContains(replay, Assertion{Event: "IME"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m.room.member|@ella:foo holds MB")
}

func TestAssertStateAbsent(t *testing.T) {
	replay := growTestdata(t, "join_rule_with_auth_chain")

	assert.NoError(t, assertStateAbsent(replay, Assertion{Slot: "m.room.member|@zara:foo"}))

	err := assertStateAbsent(replay, Assertion{Slot: "m.room.join_rules|"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "m.room.join_rules| holds JR")
}

func TestAssertTraceOrder(t *testing.T) {
	replay := growTestdata(t, "topic_basic")

	assert.NoError(t, assertTraceOrder(replay, Assertion{Events: []string{"START", "PB", "T2", "END"}}))

	err := assertTraceOrder(replay, Assertion{Events: []string{"T2", "PB"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "T2 (pos 11) should be before PB (pos 10)")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	replay := growTestdata(t, "topic_basic")

	errs := EvaluateAssertions(replay, []Assertion{{Type: "trace_count"}})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "trace_count"`)
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "PA", ShortName("$PA:foo"))
	assert.Equal(t, []string{"A", "B"}, ShortNames([]string{"$A:foo", "$B:foo"}))
	assert.Equal(t, "x:other", ShortName("$x:other"))
}

func TestReplayEndState_DropsDummySlot(t *testing.T) {
	replay := growTestdata(t, "offtopic_power_level")

	end := replay.EndState(nil)
	_, hasDummy := end[dummySlot]
	assert.False(t, hasDummy)
	assert.Equal(t, event.StateMap{{Kind: event.KindPowerLevels}: testutil.EventID("PC")}, end)
}
