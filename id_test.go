package gocrdt

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeID_Ordering(t *testing.T) {
	t.Run("primary by clock", func(t *testing.T) {
		a := NodeID{Replica: "r1", Clock: 1}
		b := NodeID{Replica: "r1", Clock: 2}
		assert.True(t, a.Less(b))
		assert.False(t, b.Less(a))
	})

	t.Run("tiebreak by replica", func(t *testing.T) {
		a := NodeID{Replica: "r1", Clock: 1}
		b := NodeID{Replica: "r2", Clock: 1}
		assert.True(t, a.Less(b))
	})

	t.Run("tiebreak by offset", func(t *testing.T) {
		a := NodeID{Replica: "r1", Clock: 1, Offset: 0}
		b := NodeID{Replica: "r1", Clock: 1, Offset: 1}
		assert.True(t, a.Less(b))
	})

	t.Run("equal identifiers", func(t *testing.T) {
		a := NodeID{Replica: "r1", Clock: 1}
		b := NodeID{Replica: "r1", Clock: 1}
		assert.Equal(t, 0, a.Compare(b))
		assert.False(t, a.Less(b))
	})
}

func TestNodeID_SortOrder(t *testing.T) {
	ids := []NodeID{
		{Replica: "r2", Clock: 2},
		{Replica: "r1", Clock: 3},
		{Replica: "r1", Clock: 1},
		{Replica: "r1", Clock: 2},
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	want := []NodeID{
		{Replica: "r1", Clock: 1},
		{Replica: "r1", Clock: 2},
		{Replica: "r2", Clock: 2},
		{Replica: "r1", Clock: 3},
	}
	assert.Equal(t, want, ids)
}

func TestNodeID_String(t *testing.T) {
	id := NodeID{Replica: "client1", Clock: 42, Offset: 5}
	assert.Equal(t, "client1@42:5", id.String())
}
