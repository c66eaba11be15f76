package gocrdt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rivo/uniseg"
	"go.uber.org/zap"
)

// FugueText is a collaborative text CRDT implementing the Fugue algorithm
// with run-length-encoded blocks.
//
// Replicas edit independently and exchange whole states with Merge; all
// replicas that have seen the same set of operations render the same string.
// Fugue's two-phase origins additionally guarantee maximal non-interleaving:
// runs typed concurrently by different authors never shred each other.
//
// The engine is a single-threaded owner. It holds the block store and the
// rope mirror exclusively, hands out only identifier copies, and takes no
// internal lock. Callers needing parallelism run one engine per replica and
// exchange state via Merge.
//
// All positions in the API are grapheme-cluster indices under Unicode
// extended grapheme segmentation.
type FugueText struct {
	replicaID string
	clock     LamportClock

	// blocks is the identifier-keyed store. Identifier order is causal
	// order, not document order; the visible sequence is derived by the
	// Fugue tree traversal.
	blocks map[NodeID]*Block

	// rope mirrors the visible text for O(log n) substring and byte
	// lookups. The block store stays authoritative for identity.
	rope *Rope

	// Position cache: visible block ids in document order plus per-block
	// cached start positions. A single validity flag makes invalidation
	// O(1); the next lookup rebuilds once.
	cacheValid   bool
	cachedBlocks []NodeID

	logger *zap.Logger
}

// TextOption configures a FugueText at construction.
type TextOption func(*FugueText)

// WithLogger attaches a structured logger. The engine logs operations at
// debug level; the default is a nop logger.
func WithLogger(logger *zap.Logger) TextOption {
	return func(ft *FugueText) {
		if logger != nil {
			ft.logger = logger.Named("fuguetext")
		}
	}
}

// NewFugueText creates an empty document for the given replica. An empty
// replicaID draws a random one.
func NewFugueText(replicaID string, opts ...TextOption) *FugueText {
	if replicaID == "" {
		replicaID = uuid.NewString()
	}
	ft := &FugueText{
		replicaID:  replicaID,
		blocks:     make(map[NodeID]*Block),
		rope:       NewRope(),
		cacheValid: true,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ft)
	}
	return ft
}

// ReplicaID returns the replica identifier of this engine.
func (ft *FugueText) ReplicaID() string {
	return ft.replicaID
}

// Clock returns the current Lamport clock value.
func (ft *FugueText) Clock() uint64 {
	return ft.clock.Value()
}

// Length returns the number of grapheme clusters in the visible text.
func (ft *FugueText) Length() int {
	return ft.rope.Len()
}

// IsEmpty reports whether the visible text is empty.
func (ft *FugueText) IsEmpty() bool {
	return ft.rope.Len() == 0
}

// String returns the visible text. Tombstoned blocks do not contribute.
func (ft *FugueText) String() string {
	return ft.rope.String()
}

// Value returns the visible text. This satisfies the CRDT interface.
func (ft *FugueText) Value() any {
	return ft.String()
}

// Clone returns an independent deep copy of the engine.
func (ft *FugueText) Clone() *FugueText {
	c := &FugueText{
		replicaID: ft.replicaID,
		clock:     ft.clock,
		blocks:    make(map[NodeID]*Block, len(ft.blocks)),
		rope:      RopeFrom(ft.rope.String()),
		logger:    ft.logger,
	}
	for id, b := range ft.blocks {
		c.blocks[id] = b.Clone()
	}
	return c
}

// Insert splices text in before the given grapheme position and returns the
// identifier of the new block.
//
// The new block anchors to the characters adjacent to the insertion point
// (its Fugue origins) and allocates one clock per grapheme, so every
// character it carries is individually addressable. Inserting the empty
// string validates the position but changes nothing.
func (ft *FugueText) Insert(position int, text string) (NodeID, error) {
	length := ft.rope.Len()
	if position < 0 || position > length {
		return NodeID{}, &PositionOutOfBoundsError{Position: position, Length: length}
	}
	k := uniseg.GraphemeClusterCount(text)
	if k == 0 {
		return NodeID{Replica: ft.replicaID, Clock: ft.clock.Value()}, nil
	}

	left, right, err := ft.findOrigins(position)
	if err != nil {
		return NodeID{}, err
	}

	id := NodeID{Replica: ft.replicaID, Clock: ft.clock.TickBy(k)}
	ft.blocks[id] = NewBlock(id, text, left, right)

	if err := ft.rope.InsertAt(position, text); err != nil {
		delete(ft.blocks, id)
		return NodeID{}, err
	}
	ft.invalidateCache()

	ft.logger.Debug("insert",
		zap.Int("position", position),
		zap.Int("graphemes", k),
		zap.Stringer("block", id))
	return id, nil
}

// Delete tombstones the graphemes in [position, position+length) and returns
// the identifiers of the tombstoned blocks.
//
// Every visible block overlapping the range is cut with a three-way split:
// the overlapped slice becomes its own block and is tombstoned, the slices
// outside the range survive. All slices keep the original per-character
// clocks, so character identifiers handed out before the delete stay valid;
// origins are assigned as described on splitRange.
func (ft *FugueText) Delete(position, length int) ([]NodeID, error) {
	docLen := ft.rope.Len()
	if position < 0 || length < 0 || position+length > docLen {
		return nil, &RangeOutOfBoundsError{Start: position, End: position + length, Length: docLen}
	}
	if length == 0 {
		return nil, nil
	}
	ft.ensureCache()

	// Walk the document order collecting the visible blocks the range
	// crosses, then split. Collecting first keeps the walk off the store
	// while it mutates.
	end := position + length
	type span struct {
		id   NodeID
		a, b int
	}
	var spans []span
	for i := ft.searchBlockAt(position); i < len(ft.cachedBlocks); i++ {
		b := ft.blocks[ft.cachedBlocks[i]]
		start, _ := b.cachedPosition()
		if start >= end {
			break
		}
		s := span{id: b.ID, b: b.Len()}
		if position > start {
			s.a = position - start
		}
		if end < start+b.Len() {
			s.b = end - start
		}
		spans = append(spans, s)
	}

	deleted := make([]NodeID, 0, len(spans))
	for _, s := range spans {
		mid, err := ft.splitRange(ft.blocks[s.id], s.a, s.b)
		if err != nil {
			return nil, err
		}
		mid.MarkDeleted()
		deleted = append(deleted, mid.ID)
	}

	if err := ft.rope.DeleteRange(position, end); err != nil {
		return nil, err
	}
	ft.invalidateCache()

	ft.logger.Debug("delete",
		zap.Int("position", position),
		zap.Int("length", length),
		zap.Int("blocks", len(deleted)))
	return deleted, nil
}

// Merge absorbs the state of another FugueText. This satisfies the CRDT
// interface; it fails only on a non-text argument.
func (ft *FugueText) Merge(other CRDT) error {
	remote, ok := other.(*FugueText)
	if !ok {
		return fmt.Errorf("cannot merge FugueText with %T", other)
	}
	ft.MergeText(remote)
	return nil
}

// MergeText absorbs the state of a remote replica. Merging is commutative,
// associative and idempotent, and it never fails: remote blocks unknown
// locally are cloned in, tombstones are unioned, and the Lamport clock is
// raised to cover everything observed. The rope mirror is rebuilt from the
// document order afterwards.
func (ft *FugueText) MergeText(remote *FugueText) {
	for _, id := range sortedBlockIDs(remote.blocks) {
		ft.absorbBlock(remote.blocks[id])
	}
	ft.clock.Update(remote.clock.Value())
	ft.rebuildRope()
	ft.invalidateCache()

	ft.logger.Debug("merge",
		zap.String("remote_replica", remote.replicaID),
		zap.Int("remote_blocks", len(remote.blocks)),
		zap.Int("local_blocks", len(ft.blocks)))
}

// absorbBlock integrates one remote block into the local store.
//
// The two stores may partition the same insert run differently: splits
// happen at different times on different replicas. A remote fragment whose
// clock range is covered locally therefore refines the local partition to
// include its boundaries before tombstones are unioned. Both stores end up
// at the common refinement, which is what makes Merge order-independent.
func (ft *FugueText) absorbBlock(rb *Block) {
	if rb.Len() == 0 {
		return
	}
	if local, ok := ft.blocks[rb.ID]; ok && local.Len() == rb.Len() {
		if rb.Deleted && !local.Deleted {
			local.MarkDeleted()
		}
		return
	}
	overlaps := ft.overlappingBlocks(rb)
	if len(overlaps) == 0 {
		ft.blocks[rb.ID] = rb.Clone()
		return
	}
	for _, id := range overlaps {
		lb := ft.blocks[id]
		segStart := lb.StartClock()
		if rb.StartClock() > segStart {
			segStart = rb.StartClock()
		}
		segEnd := lb.ID.Clock
		if rb.ID.Clock < segEnd {
			segEnd = rb.ID.Clock
		}
		a := int(segStart - lb.StartClock())
		frag, err := ft.splitRange(lb, a, int(segEnd-lb.StartClock())+1)
		if err != nil {
			continue
		}
		if rb.Deleted && !frag.Deleted {
			frag.MarkDeleted()
		}
	}
}

// overlappingBlocks returns, in identifier order, the local blocks sharing
// any clock with the remote block's range.
func (ft *FugueText) overlappingBlocks(rb *Block) []NodeID {
	var ids []NodeID
	for id, b := range ft.blocks {
		if id.Replica != rb.ID.Replica || b.Len() == 0 {
			continue
		}
		if b.StartClock() <= rb.ID.Clock && rb.StartClock() <= id.Clock {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// NodeIDAtPosition returns a stable character-level identifier for the
// grapheme at the given position. The identifier names the character's
// clock, which never moves, so it survives any later insert, delete or
// split that leaves the character alive.
func (ft *FugueText) NodeIDAtPosition(position int) (NodeID, error) {
	length := ft.rope.Len()
	if position < 0 || position >= length {
		return NodeID{}, &PositionOutOfBoundsError{Position: position, Length: length}
	}
	ft.ensureCache()
	idx := ft.searchBlockAt(position)
	if idx == len(ft.cachedBlocks) {
		return NodeID{}, &PositionOutOfBoundsError{Position: position, Length: length}
	}
	b := ft.blocks[ft.cachedBlocks[idx]]
	start, _ := b.cachedPosition()
	return b.CharacterID(position - start), nil
}

// PositionOfNodeID returns the current visible position of the character
// named by a character-level identifier, or false if the character is
// tombstoned or unknown.
func (ft *FugueText) PositionOfNodeID(id NodeID) (int, bool) {
	ft.ensureCache()
	b, ok := ft.findCoveringBlock(id)
	if !ok || b.Deleted {
		return 0, false
	}
	start, ok := b.cachedPosition()
	if !ok {
		return 0, false
	}
	return start + int(id.Clock-b.StartClock()), true
}

// findOrigins computes the Fugue origins for an insertion at the given
// position: the character immediately left of the gap and the character
// immediately right of it, either of which is absent at a document edge.
//
// When the position lies strictly inside a block the block is first split at
// the insertion point, so the anchors always sit on a store boundary. The
// split preserves every character clock and the visible order; only the
// later slice's left origin is re-anchored, as described on splitRange.
func (ft *FugueText) findOrigins(position int) (left, right *NodeID, err error) {
	ft.ensureCache()
	if len(ft.cachedBlocks) == 0 {
		return nil, nil, nil
	}
	if position == 0 {
		first := ft.blocks[ft.cachedBlocks[0]]
		r := first.CharacterID(0)
		return nil, &r, nil
	}
	if position == ft.rope.Len() {
		last := ft.blocks[ft.cachedBlocks[len(ft.cachedBlocks)-1]]
		l := last.CharacterID(last.Len() - 1)
		return &l, nil, nil
	}

	idx := ft.searchBlockAt(position)
	b := ft.blocks[ft.cachedBlocks[idx]]
	start, _ := b.cachedPosition()
	if position == start {
		// Visible blocks are contiguous, so a boundary position has a
		// predecessor block.
		prev := ft.blocks[ft.cachedBlocks[idx-1]]
		l := prev.CharacterID(prev.Len() - 1)
		r := b.CharacterID(0)
		return &l, &r, nil
	}

	o := position - start
	l := b.CharacterID(o - 1)
	r := b.CharacterID(o)
	if _, err := ft.splitRange(b, o, b.Len()); err != nil {
		return nil, nil, err
	}
	ft.invalidateCache()
	return &l, &r, nil
}

// splitRange replaces a block with up to three slices cut at grapheme
// offsets start and end, all inheriting the original's tombstone flag and
// right origin. The slices keep the original per-character clocks: the slice
// ending at offset o carries id clock startClock+o-1. The first slice keeps
// the original left origin; every later slice anchors its left origin to the
// last character of the slice before it, the same anchor a sequential insert
// at that point would use. That chains the slices in the Fugue tree, so a
// concurrent block whose identifier happens to sort between two slice ids
// can never land inside the run. The middle slice [start, end) is returned.
//
// Slice identifiers and origins depend only on the boundary offsets, so
// replicas that cut the same run at different times still converge on
// identical blocks.
func (ft *FugueText) splitRange(b *Block, start, end int) (*Block, error) {
	l := b.Len()
	if start < 0 || start >= end || end > l {
		return nil, &InvalidBlockSplitError{ID: b.ID, Start: start, End: end, BlockLen: l}
	}
	if start == 0 && end == l {
		return b, nil
	}

	gs := graphemes(b.Text)
	startClock := b.StartClock()
	delete(ft.blocks, b.ID)

	slice := func(from, to int) *Block {
		id := NodeID{Replica: b.ID.Replica, Clock: startClock + uint64(to) - 1}
		leftOrigin := b.LeftOrigin
		if from > 0 {
			lo := NodeID{Replica: b.ID.Replica, Clock: startClock + uint64(from) - 1}
			leftOrigin = &lo
		}
		nb := NewBlock(id, strings.Join(gs[from:to], ""), leftOrigin, b.RightOrigin)
		nb.Deleted = b.Deleted
		ft.blocks[id] = nb
		return nb
	}
	if start > 0 {
		slice(0, start)
	}
	mid := slice(start, end)
	if end < l {
		slice(end, l)
	}
	return mid, nil
}

// findCoveringBlock resolves a character-level identifier to the block whose
// clock range contains it.
func (ft *FugueText) findCoveringBlock(id NodeID) (*Block, bool) {
	for _, b := range ft.blocks {
		if b.ID.Replica == id.Replica && b.CoversClock(id.Clock) {
			return b, true
		}
	}
	return nil, false
}

// searchBlockAt binary-searches the position cache for the index of the
// visible block containing the given position: the first block whose end
// exceeds it. Requires a valid cache.
func (ft *FugueText) searchBlockAt(position int) int {
	return sort.Search(len(ft.cachedBlocks), func(i int) bool {
		b := ft.blocks[ft.cachedBlocks[i]]
		start, _ := b.cachedPosition()
		return position < start+b.Len()
	})
}

func (ft *FugueText) ensureCache() {
	if !ft.cacheValid {
		ft.rebuildPositionCache()
	}
}

func (ft *FugueText) invalidateCache() {
	ft.cacheValid = false
}

// rebuildPositionCache runs the Fugue tree traversal once and records, for
// every visible block, its grapheme start position. Rebuilding costs one
// pass; with it, position lookups are binary searches. Long runs of inserts
// pay the rebuild once per lookup, not once per operation.
func (ft *FugueText) rebuildPositionCache() {
	order := documentOrder(ft.blocks)
	ft.cachedBlocks = ft.cachedBlocks[:0]
	pos := 0
	for _, id := range order {
		b := ft.blocks[id]
		b.setCachedPosition(pos)
		pos += b.Len()
		ft.cachedBlocks = append(ft.cachedBlocks, id)
	}
	ft.cacheValid = true
}

// rebuildRope reassembles the mirror from the document order. Used after
// merge, where remote blocks land without position information.
func (ft *FugueText) rebuildRope() {
	var sb strings.Builder
	for _, id := range documentOrder(ft.blocks) {
		sb.WriteString(ft.blocks[id].Text)
	}
	ft.rope = RopeFrom(sb.String())
}
