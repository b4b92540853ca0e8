package clip

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ringcam/ringcam/logging"
)

// RetentionSweeper periodically unlinks clips older than maxAge, mirroring
// ClipGenerator.cleanup_old_clips — a feature present in the original
// system but absent from the distilled spec, added back here on a cron
// schedule instead of being called ad hoc.
type RetentionSweeper struct {
	clipsDir string
	maxAge   time.Duration
	log      zerolog.Logger

	cron *cron.Cron
}

// NewRetentionSweeper builds a sweeper; call Start to schedule it.
func NewRetentionSweeper(clipsDir string, maxAge time.Duration, log zerolog.Logger) *RetentionSweeper {
	return &RetentionSweeper{
		clipsDir: clipsDir,
		maxAge:   maxAge,
		log:      log,
		cron:     cron.New(),
	}
}

// Start schedules the sweep per spec and runs it once immediately so a
// freshly-started system doesn't wait a full day for its first sweep.
func (r *RetentionSweeper) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.Sweep); err != nil {
		return fmt.Errorf("clip: scheduling retention sweep %q: %w", schedule, err)
	}
	r.Sweep()
	r.cron.Start()
	return nil
}

// Stop cancels the schedule.
func (r *RetentionSweeper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// Sweep removes clips older than maxAge, mirroring cleanup_old_clips.
func (r *RetentionSweeper) Sweep() {
	matches, err := filepath.Glob(filepath.Join(r.clipsDir, "*_clip_*.mp4"))
	if err != nil {
		logging.Error(r.log, "clip_cleanup", err, nil)
		return
	}

	cutoff := time.Now().Add(-r.maxAge)
	removed := 0
	var bytesFreed int64

	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		size := info.Size()
		if err := os.Remove(path); err != nil {
			logging.Error(r.log, "clip_cleanup", err, map[string]interface{}{"file": path})
			continue
		}

		removed++
		bytesFreed += size
		logging.SystemEvent(r.log, "old_clip_removed", filepath.Base(path), map[string]interface{}{
			"file_age_days":   int(time.Since(info.ModTime()).Hours() / 24),
			"file_size_bytes": size,
		})
	}

	if removed > 0 {
		logging.SystemEvent(r.log, "clip_cleanup_completed", "retention sweep finished", map[string]interface{}{
			"clips_removed": removed,
			"bytes_freed":   bytesFreed,
			"max_age_days":  int(r.maxAge.Hours() / 24),
		})
	}
}
