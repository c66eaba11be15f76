package gocrdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, ft *FugueText) *FugueText {
	t.Helper()
	data, err := json.Marshal(ft)
	require.NoError(t, err)

	loaded := &FugueText{}
	require.NoError(t, json.Unmarshal(data, loaded))
	return loaded
}

func TestSerialize_RoundTrip(t *testing.T) {
	ft := NewFugueText("r1")
	mustInsert(t, ft, 0, "Hello Beautiful World")
	_, err := ft.Delete(6, 10)
	require.NoError(t, err)
	mustInsert(t, ft, 5, " there")

	loaded := roundTrip(t, ft)

	assert.Equal(t, ft.String(), loaded.String())
	assert.Equal(t, ft.Length(), loaded.Length())
	assert.Equal(t, ft.Clock(), loaded.Clock())
	assert.Equal(t, ft.ReplicaID(), loaded.ReplicaID())
	storesEqual(t, ft, loaded)
}

func TestSerialize_EmptyDocument(t *testing.T) {
	loaded := roundTrip(t, NewFugueText("r1"))
	assert.Equal(t, "", loaded.String())
	assert.True(t, loaded.IsEmpty())
	assert.Equal(t, "r1", loaded.ReplicaID())
}

func TestSerialize_BlocksSortedByIdentifier(t *testing.T) {
	ft := NewFugueText("r1")
	mustInsert(t, ft, 0, "World")
	mustInsert(t, ft, 0, "Hello ")

	data, err := json.Marshal(ft)
	require.NoError(t, err)

	var state struct {
		Blocks []struct {
			ID NodeID `json:"id"`
		} `json:"blocks"`
	}
	require.NoError(t, json.Unmarshal(data, &state))
	require.Len(t, state.Blocks, 2)
	assert.True(t, state.Blocks[0].ID.Less(state.Blocks[1].ID))
}

func TestSerialize_LoadedEngineKeepsMerging(t *testing.T) {
	r1 := NewFugueText("r1")
	mustInsert(t, r1, 0, "Hello")

	r2 := NewFugueText("r2")
	r2.MergeText(r1)
	mustInsert(t, r2, 5, " World")

	loaded := roundTrip(t, r1)
	loaded.MergeText(r2)
	r1.MergeText(r2)

	assert.Equal(t, r1.String(), loaded.String())
	storesEqual(t, r1, loaded)
}

func TestSerialize_LoadedEngineKeepsEditing(t *testing.T) {
	ft := NewFugueText("r1")
	mustInsert(t, ft, 0, "Hello")

	loaded := roundTrip(t, ft)
	mustInsert(t, loaded, 5, "!")

	assert.Equal(t, "Hello!", loaded.String())

	id, err := loaded.NodeIDAtPosition(5)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), id.Clock)
}

func TestSerialize_RejectsInvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed json", `{"blocks":`},
		{"missing replica id", `{"blocks":[],"clock":0,"replica_id":""}`},
		{
			"clock range underflow",
			`{"blocks":[{"id":{"replica":"r1","clock":1,"offset":0},"text":"abc","left_origin":null,"right_origin":null,"deleted":false}],"clock":3,"replica_id":"r1"}`,
		},
		{
			"duplicate identifier",
			`{"blocks":[
				{"id":{"replica":"r1","clock":1,"offset":0},"text":"a","left_origin":null,"right_origin":null,"deleted":false},
				{"id":{"replica":"r1","clock":1,"offset":0},"text":"a","left_origin":null,"right_origin":null,"deleted":true}
			],"clock":1,"replica_id":"r1"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &FugueText{}
			assert.Error(t, json.Unmarshal([]byte(tt.data), ft))
		})
	}
}
