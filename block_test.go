package gocrdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlock_GraphemeLength(t *testing.T) {
	id := NodeID{Replica: "client1", Clock: 13}

	tests := []struct {
		name string
		text string
		want int
	}{
		{"ascii", "Hello", 5},
		{"emoji", "👋", 1},
		{"family emoji joined from several code points", "👨‍👩‍👧‍👦", 1},
		{"combining accent", "é", 1},
		{"mixed", "Hello 👋 World", 13},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBlock(id, tt.text, nil, nil)
			assert.Equal(t, tt.want, b.Len())
		})
	}
}

func TestBlock_ByteLen(t *testing.T) {
	id := NodeID{Replica: "client1", Clock: 1}

	assert.Equal(t, 5, NewBlock(id, "Hello", nil, nil).ByteLen())
	assert.Equal(t, 4, NewBlock(id, "👋", nil, nil).ByteLen())
}

func TestBlock_ClockRange(t *testing.T) {
	// A block stores the clock of its LAST character; five graphemes
	// ending at clock 15 cover clocks 11..15.
	b := NewBlock(NodeID{Replica: "client1", Clock: 15}, "Hello", nil, nil)

	assert.Equal(t, uint64(11), b.StartClock())
	assert.True(t, b.CoversClock(11))
	assert.True(t, b.CoversClock(15))
	assert.False(t, b.CoversClock(10))
	assert.False(t, b.CoversClock(16))

	assert.Equal(t, NodeID{Replica: "client1", Clock: 11}, b.CharacterID(0))
	assert.Equal(t, NodeID{Replica: "client1", Clock: 13}, b.CharacterID(2))
}

func TestBlock_EmptyCoversNothing(t *testing.T) {
	b := NewBlock(NodeID{Replica: "client1", Clock: 3}, "", nil, nil)
	assert.False(t, b.CoversClock(3))
}

func TestBlock_MarkDeleted(t *testing.T) {
	b := NewBlock(NodeID{Replica: "client1", Clock: 4}, "test", nil, nil)
	assert.False(t, b.IsDeleted())

	b.MarkDeleted()
	assert.True(t, b.IsDeleted())
}

func TestBlock_OriginsAreCopied(t *testing.T) {
	left := NodeID{Replica: "client1", Clock: 1}
	b := NewBlock(NodeID{Replica: "client1", Clock: 5}, "test", &left, nil)

	left.Clock = 99
	assert.Equal(t, uint64(1), b.LeftOrigin.Clock)
	assert.Nil(t, b.RightOrigin)
}

func TestBlock_Clone(t *testing.T) {
	left := NodeID{Replica: "client1", Clock: 1}
	b := NewBlock(NodeID{Replica: "client1", Clock: 5}, "test", &left, nil)
	b.MarkDeleted()

	c := b.Clone()
	assert.Equal(t, b.ID, c.ID)
	assert.Equal(t, b.Text, c.Text)
	assert.True(t, c.IsDeleted())

	c.LeftOrigin.Clock = 42
	assert.Equal(t, uint64(1), b.LeftOrigin.Clock)
}
