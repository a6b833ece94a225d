package cleanup

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/YannKr/imgrestore/internal/db"
)

// Cleaner periodically removes runs older than Retention together with
// their stage images under DataDir/runs.
type Cleaner struct {
	DB        *sql.DB
	DataDir   string
	Interval  time.Duration
	Retention time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

func (c *Cleaner) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("cleanup scheduler started", "interval", c.Interval, "retention", c.Retention)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	slog.Info("cleanup scheduler stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.runOnce(time.Now())

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.runOnce(now)
		}
	}
}

// runOnce returns the number of runs removed.
func (c *Cleaner) runOnce(now time.Time) int {
	ids, err := db.DeleteRunsBefore(c.DB, now.Add(-c.Retention))
	if err != nil {
		slog.Error("cleanup: delete expired runs", "error", err)
		return 0
	}
	for _, id := range ids {
		dir := filepath.Join(c.DataDir, "runs", id)
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("cleanup: remove run dir", "dir", dir, "error", err)
		}
	}
	if len(ids) > 0 {
		slog.Info("cleanup: removed expired runs", "count", len(ids))
	}
	return len(ids)
}
