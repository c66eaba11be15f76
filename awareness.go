package gocrdt

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Awareness timing defaults. Clients that have not refreshed their state
// within the timeout are considered offline; senders refresh at the
// heartbeat interval even when nothing changed.
const (
	AwarenessTimeout  = 30 * time.Second
	HeartbeatInterval = 10 * time.Second
)

// IncreasingClock is a thread-safe monotonically increasing counter.
//
// Awareness uses it instead of a vector clock: presence state is ephemeral,
// last-write-wins at the client level is acceptable, and a single counter is
// cheap enough for high-frequency updates such as cursor positions.
type IncreasingClock struct {
	value atomic.Uint64
}

// Increment advances the clock and returns the new value.
func (c *IncreasingClock) Increment() uint64 {
	return c.value.Add(1)
}

// Get returns the current value without incrementing.
func (c *IncreasingClock) Get() uint64 {
	return c.value.Load()
}

// UpdateToMax raises the clock to at least the given value, preserving
// monotonicity when remote updates arrive.
func (c *IncreasingClock) UpdateToMax(other uint64) {
	for {
		cur := c.value.Load()
		if other <= cur || c.value.CompareAndSwap(cur, other) {
			return
		}
	}
}

// AwarenessState is the presence record of a single client: arbitrary JSON
// (user info, cursor, selection) plus the clock at which it was written.
type AwarenessState struct {
	ClientID string          `json:"client_id"`
	State    json.RawMessage `json:"state"`
	Clock    uint64          `json:"clock"`

	lastUpdated time.Time
}

// AwarenessUpdate is the message broadcast when a client's presence changes.
// A nil State means the client left.
type AwarenessUpdate struct {
	ClientID string          `json:"client_id"`
	State    json.RawMessage `json:"state"`
	Clock    uint64          `json:"clock"`
}

// Awareness tracks ephemeral presence state for all connected clients.
//
// Unlike the CRDTs in this package it is not convergent replicated data:
// nothing is persisted, there are no tombstones, and a stale client simply
// times out. It shares only the replica-id vocabulary with the document
// types.
type Awareness struct {
	clientID string
	states   map[string]*AwarenessState
	clock    IncreasingClock
}

// NewAwareness creates an awareness instance for the given client.
func NewAwareness(clientID string) *Awareness {
	return &Awareness{
		clientID: clientID,
		states:   make(map[string]*AwarenessState),
	}
}

// ClientID returns the local client identifier.
func (a *Awareness) ClientID() string {
	return a.clientID
}

// States returns a snapshot of all known client states.
func (a *Awareness) States() map[string]AwarenessState {
	out := make(map[string]AwarenessState, len(a.states))
	for id, st := range a.states {
		out[id] = *st
	}
	return out
}

// State returns the state of a specific client.
func (a *Awareness) State(clientID string) (AwarenessState, bool) {
	st, ok := a.states[clientID]
	if !ok {
		return AwarenessState{}, false
	}
	return *st, true
}

// LocalState returns the local client's own state.
func (a *Awareness) LocalState() (AwarenessState, bool) {
	return a.State(a.clientID)
}

// SetLocalState records the local client's presence and returns the update
// to broadcast.
func (a *Awareness) SetLocalState(state json.RawMessage) AwarenessUpdate {
	clock := a.clock.Increment()
	a.states[a.clientID] = &AwarenessState{
		ClientID:    a.clientID,
		State:       state,
		Clock:       clock,
		lastUpdated: time.Now(),
	}
	return AwarenessUpdate{ClientID: a.clientID, State: state, Clock: clock}
}

// Leave clears the local client's state and returns the departure update to
// broadcast.
func (a *Awareness) Leave() AwarenessUpdate {
	clock := a.clock.Increment()
	delete(a.states, a.clientID)
	return AwarenessUpdate{ClientID: a.clientID, Clock: clock}
}

// ApplyUpdate integrates a remote presence update. Older state updates for a
// known client are ignored; a nil state removes the client whatever its
// clock.
func (a *Awareness) ApplyUpdate(update AwarenessUpdate) {
	a.clock.UpdateToMax(update.Clock)

	if update.State == nil {
		delete(a.states, update.ClientID)
		return
	}
	if existing, ok := a.states[update.ClientID]; ok && update.Clock <= existing.Clock {
		return
	}
	a.states[update.ClientID] = &AwarenessState{
		ClientID:    update.ClientID,
		State:       update.State,
		Clock:       update.Clock,
		lastUpdated: time.Now(),
	}
}

// RemoveOutdated drops every remote client whose state is older than the
// timeout and returns the ids that were removed. The local client is never
// timed out.
func (a *Awareness) RemoveOutdated(timeout time.Duration) []string {
	cutoff := time.Now().Add(-timeout)
	var removed []string
	for id, st := range a.states {
		if id == a.clientID {
			continue
		}
		if st.lastUpdated.Before(cutoff) {
			delete(a.states, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Clear forgets every client state, local included.
func (a *Awareness) Clear() {
	a.states = make(map[string]*AwarenessState)
}
