package gocrdt

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// The serialized form of a document is an ordered sequence of blocks sorted
// by identifier, plus the Lamport clock value, plus the replica id. Cached
// positions are never serialized; they are recomputed on load. Round-tripping
// yields an engine indistinguishable in String, Length and future merge
// outcomes.

type blockState struct {
	ID          NodeID  `json:"id"`
	Text        string  `json:"text"`
	LeftOrigin  *NodeID `json:"left_origin"`
	RightOrigin *NodeID `json:"right_origin"`
	Deleted     bool    `json:"deleted"`
}

type textState struct {
	Blocks    []blockState `json:"blocks"`
	Clock     uint64       `json:"clock"`
	ReplicaID string       `json:"replica_id"`
}

// MarshalJSON encodes the engine state with blocks in identifier order.
func (ft *FugueText) MarshalJSON() ([]byte, error) {
	state := textState{
		Blocks:    make([]blockState, 0, len(ft.blocks)),
		Clock:     ft.clock.Value(),
		ReplicaID: ft.replicaID,
	}
	for _, id := range sortedBlockIDs(ft.blocks) {
		b := ft.blocks[id]
		state.Blocks = append(state.Blocks, blockState{
			ID:          b.ID,
			Text:        b.Text,
			LeftOrigin:  b.LeftOrigin,
			RightOrigin: b.RightOrigin,
			Deleted:     b.Deleted,
		})
	}
	return json.Marshal(state)
}

// UnmarshalJSON decodes an engine state. Invalid payloads are rejected here,
// before any state is replaced: this is the only boundary at which merging
// bad data can fail. The rope mirror and position cache are rebuilt from the
// decoded blocks.
func (ft *FugueText) UnmarshalJSON(data []byte) error {
	var state textState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	if state.ReplicaID == "" {
		return fmt.Errorf("serialized document missing replica id")
	}

	blocks := make(map[NodeID]*Block, len(state.Blocks))
	for _, bs := range state.Blocks {
		b := NewBlock(bs.ID, bs.Text, bs.LeftOrigin, bs.RightOrigin)
		b.Deleted = bs.Deleted
		if b.Len() > 0 && bs.ID.Clock < uint64(b.Len()) {
			return fmt.Errorf("serialized block %s: clock range underflows", bs.ID)
		}
		if _, dup := blocks[bs.ID]; dup {
			return fmt.Errorf("serialized block %s: duplicate identifier", bs.ID)
		}
		blocks[bs.ID] = b
	}
	if err := checkDisjointClockRanges(blocks); err != nil {
		return err
	}

	ft.replicaID = state.ReplicaID
	ft.clock = LamportClock{value: state.Clock}
	ft.blocks = blocks
	if ft.logger == nil {
		ft.logger = zap.NewNop()
	}
	ft.rebuildRope()
	ft.invalidateCache()
	return nil
}

// checkDisjointClockRanges rejects stores in which two blocks of one replica
// share a clock.
func checkDisjointClockRanges(blocks map[NodeID]*Block) error {
	ids := sortedBlockIDs(blocks)
	lastEnd := make(map[string]uint64)
	for _, id := range ids {
		b := blocks[id]
		if b.Len() == 0 {
			continue
		}
		if end, seen := lastEnd[id.Replica]; seen && b.StartClock() <= end {
			return fmt.Errorf("serialized block %s: clock range overlaps a sibling", id)
		}
		lastEnd[id.Replica] = id.Clock
	}
	return nil
}
