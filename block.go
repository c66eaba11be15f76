package gocrdt

import "github.com/rivo/uniseg"

// Block is a run-length-encoded unit of text with Fugue CRDT metadata.
//
// A block carries every grapheme produced by a single insert operation, so
// typing a word yields one block rather than one block per character. The
// block's ID holds the clock of its LAST character; the characters occupy the
// clock range [ID.Clock-Len+1, ID.Clock] on ID.Replica. No two blocks on the
// same replica ever share a clock.
//
// LeftOrigin and RightOrigin are Fugue's two-phase anchors. They are
// character-level identifiers: they name individual graphemes, not blocks,
// and therefore remain valid when the referenced block is later split.
//
// Blocks are immutable except for the tombstone flag and the local position
// caches. Deleted blocks stay in the store forever; removing them would break
// merging of concurrent operations.
type Block struct {
	ID          NodeID
	Text        string
	LeftOrigin  *NodeID
	RightOrigin *NodeID
	Deleted     bool

	// Grapheme count of Text, fixed at construction.
	length int

	// Cached visible grapheme start position, maintained by the engine's
	// position cache. Negative when invalid. Never serialized.
	cachedStart int

	// Cached byte start position in the rope mirror. Negative when invalid.
	ropeStart int
}

// NewBlock builds a block for the given text and origins. Origins are copied
// so the caller keeps ownership of its identifiers. Position caches start
// invalid.
func NewBlock(id NodeID, text string, leftOrigin, rightOrigin *NodeID) *Block {
	b := &Block{
		ID:          id,
		Text:        text,
		length:      uniseg.GraphemeClusterCount(text),
		cachedStart: -1,
		ropeStart:   -1,
	}
	if leftOrigin != nil {
		lo := *leftOrigin
		b.LeftOrigin = &lo
	}
	if rightOrigin != nil {
		ro := *rightOrigin
		b.RightOrigin = &ro
	}
	return b
}

// Len returns the number of grapheme clusters in the block. An emoji built
// from several code points counts as one.
func (b *Block) Len() int {
	return b.length
}

// ByteLen returns the UTF-8 byte length of the block's text, used by the
// rope mirror.
func (b *Block) ByteLen() int {
	return len(b.Text)
}

// IsEmpty reports whether the block carries no text.
func (b *Block) IsEmpty() bool {
	return b.Text == ""
}

// IsDeleted reports whether the block is a tombstone.
func (b *Block) IsDeleted() bool {
	return b.Deleted
}

// MarkDeleted tombstones the block. Tombstoning is monotone: there is no way
// to clear the flag again.
func (b *Block) MarkDeleted() {
	b.Deleted = true
}

// StartClock returns the clock of the block's first character.
func (b *Block) StartClock() uint64 {
	if b.length == 0 {
		return b.ID.Clock
	}
	return b.ID.Clock - uint64(b.length) + 1
}

// CoversClock reports whether the given clock falls inside the block's clock
// range. Empty blocks cover nothing.
func (b *Block) CoversClock(clock uint64) bool {
	return b.length > 0 && clock >= b.StartClock() && clock <= b.ID.Clock
}

// CharacterID returns the character-level identifier of the grapheme at the
// given offset within the block.
func (b *Block) CharacterID(offset int) NodeID {
	return NodeID{Replica: b.ID.Replica, Clock: b.StartClock() + uint64(offset)}
}

// Clone returns a deep copy of the block with invalid caches.
func (b *Block) Clone() *Block {
	c := NewBlock(b.ID, b.Text, b.LeftOrigin, b.RightOrigin)
	c.Deleted = b.Deleted
	return c
}

func (b *Block) cachedPosition() (int, bool) {
	if b.cachedStart < 0 {
		return 0, false
	}
	return b.cachedStart, true
}

func (b *Block) setCachedPosition(pos int) {
	b.cachedStart = pos
}

func (b *Block) invalidateCaches() {
	b.cachedStart = -1
	b.ropeStart = -1
}

// graphemes splits a string into its extended grapheme clusters.
func graphemes(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, len(s))
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}
