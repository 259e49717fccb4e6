package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/gatewatch/internal/models"
	"github.com/vesaa/gatewatch/internal/registry"
)

func TestBuildCountsAndUptime(t *testing.T) {
	regs := registry.NewSet(models.Servers...)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, regs.Add(models.ServerExternal, models.Connection{ID: id, Server: models.ServerExternal}))
	}
	require.NoError(t, regs.Add(models.ServerInternal, models.Connection{ID: "x", Server: models.ServerInternal}))

	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBuilder(regs, started, WithClock(func() time.Time { return started.Add(90 * time.Second) }))

	snap := b.Build()
	assert.Equal(t, 3, snap.OpenAIConnections)
	assert.Equal(t, 1, snap.AgentConnections)
	assert.InDelta(t, 90.0, snap.ServerUptime, 0.001)
	assert.Greater(t, snap.MemoryUsage, 0.0)
	assert.Positive(t, snap.Goroutines)
	assert.Nil(t, snap.LogFiles)

	require.NoError(t, regs.Remove(models.ServerExternal, "a"))
	assert.Equal(t, 2, b.Build().OpenAIConnections, "each build reads the registry afresh")
}

func TestBuildLogFiles(t *testing.T) {
	dir := t.TempDir()
	combined := filepath.Join(dir, "combined.log")
	require.NoError(t, os.WriteFile(combined, make([]byte, 512*1024), 0o600))
	missing := filepath.Join(dir, "error.log")

	b := NewBuilder(registry.NewSet(models.Servers...), time.Now(), WithLogFiles([]string{combined, missing}))
	snap := b.Build()

	require.Len(t, snap.LogFiles, 2)
	assert.Equal(t, "combined.log", snap.LogFiles[0].File)
	assert.InDelta(t, 0.5, snap.LogFiles[0].Size, 0.0001)
	assert.Equal(t, "error.log", snap.LogFiles[1].File)
	assert.Zero(t, snap.LogFiles[1].Size, "missing files report zero")
}

func TestBuildProcessStats(t *testing.T) {
	b := NewBuilder(registry.NewSet(models.Servers...), time.Now(), WithProcessStats())
	snap := b.Build()
	if snap.ProcessRSS == nil {
		t.Skip("process stats unavailable on this platform")
	}
	assert.Greater(t, *snap.ProcessRSS, 0.0)
}
