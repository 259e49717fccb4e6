// Package metrics builds the snapshot served by GET /metrics.
package metrics

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/vesaa/gatewatch/internal/models"
)

const bytesPerMB = 1024 * 1024

// Counter reports the open connections of a server.
type Counter interface {
	Count(server models.ServerID) int
}

// Builder assembles MetricsSnapshot values. It holds no mutable state of
// its own; every Build reads the registries and runtime afresh.
type Builder struct {
	counts   Counter
	started  time.Time
	logFiles []string
	proc     *process.Process
	now      func() time.Time
}

// Option customises a Builder.
type Option func(*Builder)

// WithLogFiles makes snapshots report the size of each file in paths.
func WithLogFiles(paths []string) Option {
	return func(b *Builder) { b.logFiles = paths }
}

// WithProcessStats adds the resident set size of this process via gopsutil.
func WithProcessStats() Option {
	return func(b *Builder) {
		if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
			b.proc = p
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a Builder; started is the process start time used for
// uptime.
func NewBuilder(counts Counter, started time.Time, opts ...Option) *Builder {
	b := &Builder{
		counts:  counts,
		started: started,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns a fresh snapshot. Cost is one lock per registry plus a
// runtime memory read, independent of the number of connections.
func (b *Builder) Build() models.MetricsSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := models.MetricsSnapshot{
		OpenAIConnections: b.counts.Count(models.ServerExternal),
		AgentConnections:  b.counts.Count(models.ServerInternal),
		ServerUptime:      b.now().Sub(b.started).Seconds(),
		MemoryUsage:       float64(ms.HeapAlloc) / bytesPerMB,
		Goroutines:        runtime.NumGoroutine(),
	}

	if b.proc != nil {
		if mi, err := b.proc.MemoryInfo(); err == nil {
			rss := float64(mi.RSS) / bytesPerMB
			snap.ProcessRSS = &rss
		}
	}

	if len(b.logFiles) > 0 {
		snap.LogFiles = make([]models.LogFile, 0, len(b.logFiles))
		for _, path := range b.logFiles {
			snap.LogFiles = append(snap.LogFiles, models.LogFile{
				File: filepath.Base(path),
				Size: fileSizeMB(path),
			})
		}
	}
	return snap
}

// fileSizeMB returns the size of path in MB, or 0 if it cannot be read.
func fileSizeMB(path string) float64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(fi.Size()) / bytesPerMB
}
