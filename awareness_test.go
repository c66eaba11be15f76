package gocrdt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncreasingClock(t *testing.T) {
	var clock IncreasingClock
	assert.Equal(t, uint64(0), clock.Get())
	assert.Equal(t, uint64(1), clock.Increment())
	assert.Equal(t, uint64(2), clock.Increment())

	clock.UpdateToMax(10)
	assert.Equal(t, uint64(10), clock.Get())

	clock.UpdateToMax(3) // must not decrease
	assert.Equal(t, uint64(10), clock.Get())
}

func TestAwareness_SetLocalState(t *testing.T) {
	a := NewAwareness("client-1")
	assert.Equal(t, "client-1", a.ClientID())
	assert.Empty(t, a.States())

	update := a.SetLocalState(json.RawMessage(`{"cursor":5}`))
	assert.Equal(t, "client-1", update.ClientID)
	assert.Equal(t, uint64(1), update.Clock)

	st, ok := a.LocalState()
	require.True(t, ok)
	assert.JSONEq(t, `{"cursor":5}`, string(st.State))
}

func TestAwareness_ApplyUpdate(t *testing.T) {
	a := NewAwareness("client-1")

	a.ApplyUpdate(AwarenessUpdate{
		ClientID: "client-2",
		State:    json.RawMessage(`{"cursor":1}`),
		Clock:    4,
	})

	st, ok := a.State("client-2")
	require.True(t, ok)
	assert.Equal(t, uint64(4), st.Clock)

	// Stale updates are ignored.
	a.ApplyUpdate(AwarenessUpdate{
		ClientID: "client-2",
		State:    json.RawMessage(`{"cursor":0}`),
		Clock:    2,
	})
	st, _ = a.State("client-2")
	assert.JSONEq(t, `{"cursor":1}`, string(st.State))

	// The local clock follows remote updates for monotonicity.
	update := a.SetLocalState(json.RawMessage(`{}`))
	assert.Greater(t, update.Clock, uint64(4))
}

func TestAwareness_Leave(t *testing.T) {
	a := NewAwareness("client-1")
	b := NewAwareness("client-2")

	b.ApplyUpdate(a.SetLocalState(json.RawMessage(`{"online":true}`)))
	_, ok := b.State("client-1")
	require.True(t, ok)

	b.ApplyUpdate(a.Leave())
	_, ok = b.State("client-1")
	assert.False(t, ok)
}

func TestAwareness_RemoveOutdated(t *testing.T) {
	a := NewAwareness("client-1")
	a.SetLocalState(json.RawMessage(`{}`))
	a.ApplyUpdate(AwarenessUpdate{
		ClientID: "client-2",
		State:    json.RawMessage(`{}`),
		Clock:    1,
	})

	// Nothing is stale yet.
	assert.Empty(t, a.RemoveOutdated(AwarenessTimeout))

	// With a negative timeout the cutoff lies in the future, so every
	// remote client is stale; the local client is never timed out.
	removed := a.RemoveOutdated(-time.Second)
	assert.Equal(t, []string{"client-2"}, removed)
	_, ok := a.LocalState()
	assert.True(t, ok)
}

func TestAwareness_Clear(t *testing.T) {
	a := NewAwareness("client-1")
	a.SetLocalState(json.RawMessage(`{}`))

	a.Clear()
	assert.Empty(t, a.States())
}
