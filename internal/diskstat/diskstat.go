package diskstat

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Stats is a point-in-time snapshot of disk usage.
type Stats struct {
	TotalBytes    uint64    `json:"total_bytes"`
	FreeBytes     uint64    `json:"free_bytes"`
	AppBytes      uint64    `json:"app_bytes"` // bytes under DATA_DIR
	RunsBytes     uint64    `json:"runs_bytes"`
	DatabaseBytes uint64    `json:"database_bytes"`
	CapturedAt    time.Time `json:"captured_at"`
}

// PctFree returns the percentage of disk space that is free (0-100).
func (s Stats) PctFree() float64 {
	if s.TotalBytes == 0 {
		return 100
	}
	return float64(s.FreeBytes) / float64(s.TotalBytes) * 100
}

// Low reports whether free space is at or below minPct percent.
func (s Stats) Low(minPct float64) bool {
	return s.PctFree() <= minPct
}

// Cache is a goroutine-safe cached disk stats value, refreshed periodically.
type Cache struct {
	mu       sync.RWMutex
	stats    Stats
	dataDir  string
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func New(dataDir string, ttl time.Duration) *Cache {
	return &Cache{
		dataDir: dataDir,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
}

// Start refreshes once and then polls every ttl.
func (c *Cache) Start() {
	c.refresh()
	go func() {
		t := time.NewTicker(c.ttl)
		defer t.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-t.C:
				c.refresh()
			}
		}
	}()
}

func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Get returns the latest cached stats.
func (c *Cache) Get() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Refresh forces an immediate update.
func (c *Cache) Refresh() {
	c.refresh()
}

func (c *Cache) refresh() {
	total, free, err := statFS(c.dataDir)
	if err != nil {
		// Not fatal; leave previous values in place
		return
	}
	app, runs, database := walkDirSizes(c.dataDir)
	s := Stats{
		TotalBytes:    total,
		FreeBytes:     free,
		AppBytes:      app,
		RunsBytes:     runs,
		DatabaseBytes: database,
		CapturedAt:    time.Now(),
	}
	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()
}

func statFS(path string) (total, free uint64, err error) {
	var stat syscall.Statfs_t
	if err = syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	bsize := uint64(stat.Bsize)
	return bsize * stat.Blocks, bsize * stat.Bavail, nil
}

func walkDirSizes(dataDir string) (total, runs, database uint64) {
	filepath.WalkDir(dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size := uint64(info.Size())
		total += size
		rel, err := filepath.Rel(dataDir, path)
		if err != nil {
			return nil
		}
		switch top, _, _ := strings.Cut(filepath.ToSlash(rel), "/"); top {
		case "runs":
			runs += size
		case "db":
			database += size
		}
		return nil
	})
	return
}
