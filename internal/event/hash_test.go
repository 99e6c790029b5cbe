package event

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashedEvent() *Event {
	return &Event{
		RoomID:         "!room:test",
		Sender:         "@alice:test",
		Kind:           KindTopic,
		StateKey:       StrPtr(""),
		Content:        json.RawMessage(`{"topic":"hello"}`),
		AuthEvents:     []string{"$create"},
		PrevEvents:     []string{"$create"},
		OriginServerTS: 1000,
		Depth:          2,
	}
}

func TestReferenceHash_Deterministic(t *testing.T) {
	a := hashedEvent()
	b := hashedEvent()
	b.Content = json.RawMessage(`{ "topic" : "hello" }`)

	idA, err := ReferenceHash(a)
	require.NoError(t, err)
	idB, err := ReferenceHash(b)
	require.NoError(t, err)

	assert.Equal(t, idA, idB, "whitespace in content must not change the id")
	assert.True(t, strings.HasPrefix(idA, "$"))
	assert.NotContains(t, idA, "=")
}

func TestReferenceHash_IgnoresIDAndRejection(t *testing.T) {
	a := hashedEvent()
	b := hashedEvent()
	b.ID = "$something-else"
	b.Rejected = true
	assert.Equal(t, MustReferenceHash(a), MustReferenceHash(b))
}

func TestReferenceHash_SensitiveToFields(t *testing.T) {
	base := MustReferenceHash(hashedEvent())

	mutations := map[string]func(*Event){
		"content":   func(e *Event) { e.Content = json.RawMessage(`{"topic":"bye"}`) },
		"sender":    func(e *Event) { e.Sender = "@bob:test" },
		"state_key": func(e *Event) { e.StateKey = nil },
		"auth":      func(e *Event) { e.AuthEvents = nil },
		"ts":        func(e *Event) { e.OriginServerTS++ },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			ev := hashedEvent()
			mutate(ev)
			assert.NotEqual(t, base, MustReferenceHash(ev))
		})
	}
}

func TestReferenceHash_InvalidContent(t *testing.T) {
	ev := hashedEvent()
	ev.Content = json.RawMessage(`{"weight":0.5}`)
	_, err := ReferenceHash(ev)
	assert.Error(t, err)
}

func TestStateHash(t *testing.T) {
	a := StateMap{{KindCreate, ""}: "$c", {KindMember, "@a:test"}: "$m"}
	b := StateMap{{KindMember, "@a:test"}: "$m", {KindCreate, ""}: "$c"}

	ha, err := StateHash(a)
	require.NoError(t, err)
	hb, err := StateHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	b[StateKey{KindTopic, ""}] = "$t"
	hc, err := StateHash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}
