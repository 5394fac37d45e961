package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanml/pkg/dataprep"
	"loanml/pkg/pipeline"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "predictions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, label int, at time.Time) pipeline.PredictionRecord {
	return pipeline.PredictionRecord{
		ID:          id,
		Label:       label,
		Approved:    label == 1,
		Probability: 0.75,
		Input:       dataprep.RawRecord{dataprep.Gender: "Male", dataprep.PropertyArea: "Urban"},
		Features:    dataprep.Features{dataprep.Gender: 1, dataprep.TotalIncome: 5000},
		Filled:      []string{dataprep.CreditHistory},
		CreatedAt:   at,
	}
}

func TestStore_RecordGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	want := record("a", 1, at)
	require.NoError(t, s.Record(ctx, want))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Label, got.Label)
	assert.True(t, got.Approved)
	assert.Equal(t, want.Probability, got.Probability)
	assert.Equal(t, want.Input, got.Input)
	assert.Equal(t, want.Features, got.Features)
	assert.Equal(t, want.Filled, got.Filled)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestStore_GetMissing(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DuplicateID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, record("a", 1, time.Now())))
	assert.Error(t, s.Record(ctx, record("a", 0, time.Now())))
}

func TestStore_RecentNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	// Sub-second offsets check that ordering is not lexical on a
	// variable-width timestamp.
	require.NoError(t, s.Record(ctx, record("first", 0, base)))
	require.NoError(t, s.Record(ctx, record("third", 1, base.Add(time.Second))))
	require.NoError(t, s.Record(ctx, record("second", 1, base.Add(500*time.Millisecond))))

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"third", "second", "first"}, []string{recs[0].ID, recs[1].ID, recs[2].ID})

	recs, err = s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "third", recs[0].ID)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "predictions.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), record("kept", 1, time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
	_, err = s.Get(context.Background(), "kept")
	assert.NoError(t, err)
}
