package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrove-indexer/internal/storage"
)

func TestJournal_AppendAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	journal := NewJournal(conn)

	batchID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)
	entries := []storage.JournalEntry{
		{BatchID: batchID, Stream: "oracle", Offset: 2, Kind: "SetGasprice", Timestamp: now, AppliedAt: now},
		{BatchID: batchID, Stream: "oracle", Offset: 1, Kind: "SetDensity", Skipped: true, Timestamp: now, AppliedAt: now},
		{BatchID: batchID, Stream: "kandel", Offset: 1, Kind: "Populate", Undo: true, Timestamp: now, AppliedAt: now},
	}
	require.NoError(t, journal.Append(ctx, entries))

	got, err := journal.entriesByStream(ctx, "oracle")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(1), got[0].Offset)
	assert.True(t, got[0].Skipped)
	assert.Equal(t, "SetGasprice", got[1].Kind)
	assert.Equal(t, batchID, got[1].BatchID)
	assert.True(t, now.Equal(got[1].Timestamp))
}

func TestJournal_AppendEmpty(t *testing.T) {
	journal := NewJournal(nil)
	assert.NoError(t, journal.Append(context.Background(), nil))
}

func TestJournal_InvalidBatchID(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewJournal(conn).Append(context.Background(), []storage.JournalEntry{{BatchID: "not-a-uuid", Stream: "s"}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
