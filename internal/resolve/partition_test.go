package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/roomstate/internal/event"
)

func key(stateKey string) event.StateKey {
	return event.StateKey{Kind: event.KindMember, Key: stateKey}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name         string
		sets         []event.StateMap
		unconflicted event.StateMap
		conflicted   map[event.StateKey][]string
	}{
		{
			name: "unique keys",
			sets: []event.StateMap{
				{key("@a"): "$0"},
				{key("@b"): "$1"},
				{key("@c"): "$2"},
			},
			unconflicted: event.StateMap{},
			conflicted: map[event.StateKey][]string{
				key("@a"): {"$0"},
				key("@b"): {"$1"},
				key("@c"): {"$2"},
			},
		},
		{
			name: "same key different ids",
			sets: []event.StateMap{
				{key("@a"): "$0"},
				{key("@a"): "$1"},
				{key("@a"): "$2"},
			},
			unconflicted: event.StateMap{},
			conflicted:   map[event.StateKey][]string{key("@a"): {"$0", "$1", "$2"}},
		},
		{
			name: "same key same id",
			sets: []event.StateMap{
				{key("@a"): "$0"},
				{key("@a"): "$0"},
			},
			unconflicted: event.StateMap{key("@a"): "$0"},
			conflicted:   map[event.StateKey][]string{},
		},
		{
			name: "mixed",
			sets: []event.StateMap{
				{key("@a"): "$0", key("@b"): "$1"},
				{key("@a"): "$0", key("@c"): "$2"},
			},
			unconflicted: event.StateMap{key("@a"): "$0"},
			conflicted: map[event.StateKey][]string{
				key("@b"): {"$1"},
				key("@c"): {"$2"},
			},
		},
		{
			name:         "no branches",
			sets:         nil,
			unconflicted: event.StateMap{},
			conflicted:   map[event.StateKey][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unconflicted, conflicted := Partition(tt.sets, AbsentSlotConflicts)
			assert.Equal(t, tt.unconflicted, unconflicted)
			assert.Equal(t, tt.conflicted, conflicted)
		})
	}
}

func TestPartition_AbsentSlotIgnored(t *testing.T) {
	sets := []event.StateMap{
		{key("@a"): "$0", key("@b"): "$1"},
		{key("@a"): "$0", key("@c"): "$2"},
		{key("@a"): "$3", key("@c"): "$2"},
	}

	unconflicted, conflicted := Partition(sets, AbsentSlotIgnored)
	assert.Equal(t, event.StateMap{key("@b"): "$1", key("@c"): "$2"}, unconflicted)
	assert.Equal(t, map[event.StateKey][]string{key("@a"): {"$0", "$3"}}, conflicted)
}

func TestAbsentSlotPolicy_String(t *testing.T) {
	assert.Equal(t, "conflicts", AbsentSlotConflicts.String())
	assert.Equal(t, "ignored", AbsentSlotIgnored.String())
	assert.Equal(t, "unknown", AbsentSlotPolicy(9).String())
}
