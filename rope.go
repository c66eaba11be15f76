package gocrdt

import (
	"strings"

	"github.com/rivo/uniseg"
)

// Rope is a balanced chunked string that mirrors the visible document text.
//
// The block store is authoritative for identity and merge; the rope is
// authoritative for substring and byte lookups. It tracks both byte and
// grapheme counts per subtree, giving O(log n) grapheme-to-byte conversion
// and O(log n) edits. All positions in the public API are grapheme indices;
// leaf boundaries always fall on grapheme boundaries, so subtree grapheme
// counts add up.
type Rope struct {
	root *ropeNode
}

const (
	// Soft byte limit per leaf. Edits split and re-join leaves around it.
	ropeLeafSize = 512

	// Height at which an edit triggers a full rebalance.
	ropeMaxHeight = 48
)

// ropeNode is either a leaf (text != "", no children) or an internal node.
type ropeNode struct {
	left, right *ropeNode
	text        string
	bytes       int
	graphs      int
	height      int
}

func ropeLeaf(s string) *ropeNode {
	return &ropeNode{
		text:   s,
		bytes:  len(s),
		graphs: uniseg.GraphemeClusterCount(s),
		height: 1,
	}
}

func (n *ropeNode) isLeaf() bool {
	return n.left == nil && n.right == nil
}

func nodeBytes(n *ropeNode) int {
	if n == nil {
		return 0
	}
	return n.bytes
}

func nodeGraphs(n *ropeNode) int {
	if n == nil {
		return 0
	}
	return n.graphs
}

func nodeHeight(n *ropeNode) int {
	if n == nil {
		return 0
	}
	return n.height
}

// ropeConcat joins two subtrees, merging adjacent small leaves.
func ropeConcat(a, b *ropeNode) *ropeNode {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.isLeaf() && b.isLeaf() && a.bytes+b.bytes <= ropeLeafSize {
		return ropeLeaf(a.text + b.text)
	}
	h := nodeHeight(a)
	if nodeHeight(b) > h {
		h = nodeHeight(b)
	}
	return &ropeNode{
		left:   a,
		right:  b,
		bytes:  a.bytes + b.bytes,
		graphs: a.graphs + b.graphs,
		height: h + 1,
	}
}

// leafByteOffset returns the byte offset of the pos-th grapheme in a leaf.
func leafByteOffset(s string, pos int) int {
	if pos == 0 {
		return 0
	}
	g := uniseg.NewGraphemes(s)
	n := 0
	for g.Next() {
		n++
		if n == pos {
			_, end := g.Positions()
			return end
		}
	}
	return len(s)
}

// ropeSplit divides a subtree at the given grapheme position.
func ropeSplit(n *ropeNode, pos int) (*ropeNode, *ropeNode) {
	if n == nil {
		return nil, nil
	}
	if pos <= 0 {
		return nil, n
	}
	if pos >= n.graphs {
		return n, nil
	}
	if n.isLeaf() {
		off := leafByteOffset(n.text, pos)
		return ropeLeaf(n.text[:off]), ropeLeaf(n.text[off:])
	}
	lg := nodeGraphs(n.left)
	if pos < lg {
		a, b := ropeSplit(n.left, pos)
		return a, ropeConcat(b, n.right)
	}
	a, b := ropeSplit(n.right, pos-lg)
	return ropeConcat(n.left, a), b
}

// buildChunks turns a string into a balanced subtree of grapheme-aligned
// leaves of at most ropeLeafSize bytes.
func buildChunks(s string) *ropeNode {
	if s == "" {
		return nil
	}
	if len(s) <= ropeLeafSize {
		return ropeLeaf(s)
	}
	var leaves []*ropeNode
	start := 0
	prev := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		_, end := g.Positions()
		if end-start > ropeLeafSize && prev > start {
			leaves = append(leaves, ropeLeaf(s[start:prev]))
			start = prev
		}
		prev = end
	}
	if start < len(s) {
		leaves = append(leaves, ropeLeaf(s[start:]))
	}
	return buildBalanced(leaves)
}

func buildBalanced(leaves []*ropeNode) *ropeNode {
	switch len(leaves) {
	case 0:
		return nil
	case 1:
		return leaves[0]
	}
	mid := len(leaves) / 2
	return ropeConcat(buildBalanced(leaves[:mid]), buildBalanced(leaves[mid:]))
}

func collectLeaves(n *ropeNode, out []*ropeNode) []*ropeNode {
	if n == nil {
		return out
	}
	if n.isLeaf() {
		return append(out, n)
	}
	out = collectLeaves(n.left, out)
	return collectLeaves(n.right, out)
}

// NewRope returns an empty rope.
func NewRope() *Rope {
	return &Rope{}
}

// RopeFrom builds a rope holding the given text.
func RopeFrom(s string) *Rope {
	return &Rope{root: buildChunks(s)}
}

// Len returns the number of grapheme clusters in the rope.
func (r *Rope) Len() int {
	return nodeGraphs(r.root)
}

// ByteLen returns the total UTF-8 byte length.
func (r *Rope) ByteLen() int {
	return nodeBytes(r.root)
}

// String reassembles the full text.
func (r *Rope) String() string {
	var sb strings.Builder
	sb.Grow(nodeBytes(r.root))
	var walk func(n *ropeNode)
	walk = func(n *ropeNode) {
		if n == nil {
			return
		}
		if n.isLeaf() {
			sb.WriteString(n.text)
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(r.root)
	return sb.String()
}

// InsertAt splices text in before the pos-th grapheme.
func (r *Rope) InsertAt(pos int, s string) error {
	if pos < 0 || pos > r.Len() {
		return &RopeError{Msg: "insert position out of range"}
	}
	if s == "" {
		return nil
	}
	a, b := ropeSplit(r.root, pos)
	r.root = ropeConcat(ropeConcat(a, buildChunks(s)), b)
	r.rebalance()
	return nil
}

// DeleteRange removes the graphemes in [start, end).
func (r *Rope) DeleteRange(start, end int) error {
	if start < 0 || end < start || end > r.Len() {
		return &RopeError{Msg: "delete range out of range"}
	}
	if start == end {
		return nil
	}
	a, rest := ropeSplit(r.root, start)
	_, c := ropeSplit(rest, end-start)
	r.root = ropeConcat(a, c)
	r.rebalance()
	return nil
}

// ByteOffset converts a grapheme position to the byte offset of that
// position in the flat text.
func (r *Rope) ByteOffset(pos int) (int, error) {
	if pos < 0 || pos > r.Len() {
		return 0, &RopeError{Msg: "byte offset position out of range"}
	}
	off := 0
	n := r.root
	for n != nil && !n.isLeaf() {
		lg := nodeGraphs(n.left)
		if pos < lg {
			n = n.left
			continue
		}
		pos -= lg
		off += nodeBytes(n.left)
		n = n.right
	}
	if n != nil {
		off += leafByteOffset(n.text, pos)
	}
	return off, nil
}

// rebalance rebuilds the tree from its leaves once edits have skewed it past
// the height bound. Splits and concats touch O(log n) nodes, so rebuilding
// is rare and amortizes away.
func (r *Rope) rebalance() {
	if nodeHeight(r.root) <= ropeMaxHeight {
		return
	}
	leaves := collectLeaves(r.root, nil)
	r.root = buildBalanced(leaves)
}
