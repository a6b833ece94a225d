package diskstat

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPctFree(t *testing.T) {
	assert.Equal(t, 100.0, Stats{}.PctFree())
	s := Stats{TotalBytes: 200, FreeBytes: 5}
	assert.Equal(t, 2.5, s.PctFree())
	assert.True(t, s.Low(5))
	assert.False(t, s.Low(1))
}

func TestCacheCountsRunsAndDatabase(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "runs", "r1"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "db"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runs", "r1", "denoised.png"), make([]byte, 300), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db", "imgrestore.db"), make([]byte, 100), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runsheet.txt"), make([]byte, 7), 0644))

	c := New(dir, time.Hour)
	c.Start()
	defer c.Stop()

	s := c.Get()
	assert.Equal(t, uint64(407), s.AppBytes)
	assert.Equal(t, uint64(300), s.RunsBytes)
	assert.Equal(t, uint64(100), s.DatabaseBytes)
	assert.Greater(t, s.TotalBytes, uint64(0))
	assert.False(t, s.CapturedAt.IsZero())

	c.Stop()
}
