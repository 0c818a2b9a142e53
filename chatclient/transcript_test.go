package chatclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptMergeDeduplicates(t *testing.T) {
	tr := NewTranscript()
	require.True(t, tr.Merge(1, "hi", "outbound"))
	require.False(t, tr.Merge(1, "hi", "outbound"), "same id merged twice")
	require.True(t, tr.Merge(2, "there", "outbound"))

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(2), entries[1].ID)
}

func TestTranscriptOverlapMergesIdempotently(t *testing.T) {
	tr := NewTranscript()
	// First poll delivers 1..3, second re-delivers 2..4 from an older cursor.
	for _, id := range []int64{1, 2, 3} {
		tr.Merge(id, "m", "outbound")
	}
	for _, id := range []int64{2, 3, 4} {
		tr.Merge(id, "m", "outbound")
	}
	assert.Len(t, tr.Entries(), 4)
}

func TestTranscriptLocalEntriesUseWireDirections(t *testing.T) {
	tr := NewTranscript()
	tr.AppendPending("hi")
	tr.AppendError("failed")

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "inbound", entries[0].Direction, "visitor messages carry the wire direction")
	assert.Equal(t, "outbound", entries[1].Direction, "error notices render like bot replies")
}

func TestTranscriptClearPendingKeepsConfirmedAndErrors(t *testing.T) {
	tr := NewTranscript()
	tr.AppendPending("sending...")
	tr.Merge(1, "ok", "outbound")
	tr.AppendError("failed")
	tr.ClearPending()

	entries := tr.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, KindMessage, entries[0].Kind)
	assert.Equal(t, KindError, entries[1].Kind)
}
