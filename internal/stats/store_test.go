package stats

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "stats.json"))
	require.NoError(t, err)
	assert.Equal(t, Record{}, s.Get("ADT"))
}

func TestIncrementAndFlushRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.IncrementProcessed("ADT"))
	require.NoError(t, s.IncrementProcessed("ADT"))
	require.NoError(t, s.IncrementErrors("ADT"))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, Record{Processed: 2, Errors: 1}, reopened.Get("ADT"))
}

func TestSnapshotIsACopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.IncrementProcessed("ADT"))

	snap := s.Snapshot()
	snap["ADT"] = Record{Processed: 999}
	assert.Equal(t, uint64(1), s.Get("ADT").Processed)
}
