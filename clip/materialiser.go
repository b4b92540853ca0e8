// Package clip materialises a rolling-buffer window into a durable clip
// file on trigger, choosing between a fast stream-copy concatenation and a
// precise re-encoded cut depending on chunk-boundary alignment.
package clip

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ringcam/ringcam/buffer"
	"github.com/ringcam/ringcam/logging"
)

const (
	fastConcatTimeout    = 60 * time.Second
	preciseConcatTimeout = 60 * time.Second
	preciseCutTimeout    = 120 * time.Second

	// Extra lookback the precise path grabs beyond the requested
	// duration, to guarantee the concatenated source covers the cut.
	preciseLookbackSlack = 10 * time.Second
)

// Job describes one clip materialisation request/result.
type Job struct {
	ID          string
	CameraID    string
	TriggerTime time.Time
	Duration    time.Duration
	Mode        string // "fast_copy" | "precise_cut"
	OutputPath  string
	Success     bool
	Err         error
}

// Materialiser turns buffered segments into clip files for one system.
type Materialiser struct {
	log           zerolog.Logger
	buffers       *buffer.Manager
	clipsDir      string
	ffmpegPath    string
	chunkDuration time.Duration

	clipsGenerated       int64
	totalProcessingNanos int64
}

// New builds a Materialiser.
func New(log zerolog.Logger, buffers *buffer.Manager, clipsDir, ffmpegPath string, chunkDuration time.Duration) *Materialiser {
	return &Materialiser{
		log:           log,
		buffers:       buffers,
		clipsDir:      clipsDir,
		ffmpegPath:    ffmpegPath,
		chunkDuration: chunkDuration,
	}
}

// GenerateClip materialises one camera's clip for the given trigger.
// Mirrors ClipGenerator.generate_clip's eight-step procedure: freeze,
// select segments (with the recent() and insufficient-segments fallback
// ladder), choose mode, compose, rename into place, always unfreeze.
func (m *Materialiser) GenerateClip(ctx context.Context, cameraID string, triggerTime time.Time, duration time.Duration) Job {
	job := Job{
		ID:          uuid.NewString(),
		CameraID:    cameraID,
		TriggerTime: triggerTime,
		Duration:    duration,
	}
	start := time.Now()

	logging.CameraEvent(m.log, cameraID, "clip_generation_started", "starting clip generation", map[string]interface{}{
		"duration_seconds": duration.Seconds(),
	})

	buf, ok := m.buffers.Get(cameraID)
	if !ok {
		job.Err = fmt.Errorf("clip: no buffer registered for %s", cameraID)
		logging.CameraError(m.log, cameraID, "clip_generation_failed", job.Err.Error(), map[string]interface{}{"job_id": job.ID})
		return job
	}

	buf.Freeze()
	defer buf.Unfreeze()

	segments := m.selectSegments(buf, cameraID, triggerTime, duration)
	if len(segments) == 0 {
		job.Err = fmt.Errorf("clip: no segments available for %s", cameraID)
		logging.CameraError(m.log, cameraID, "clip_generation_failed", "no segments available", map[string]interface{}{"job_id": job.ID})
		return job
	}

	useFast := canUseFastMode(triggerTime, duration, m.chunkDuration)
	job.Mode = "precise_cut"
	if useFast {
		job.Mode = "fast_copy"
	}

	filename := clipFilename(cameraID, triggerTime)
	job.OutputPath = filepath.Join(m.clipsDir, filename)

	var err error
	if useFast {
		err = m.generateFast(ctx, segments, job.OutputPath, duration)
	} else {
		err = m.generatePrecise(ctx, segments, job.OutputPath, triggerTime, duration)
	}

	elapsed := time.Since(start)
	if err != nil {
		job.Err = err
		logging.CameraError(m.log, cameraID, "clip_generation_failed", err.Error(), map[string]interface{}{"job_id": job.ID})
		return job
	}

	job.Success = true
	atomic.AddInt64(&m.clipsGenerated, 1)
	atomic.AddInt64(&m.totalProcessingNanos, int64(elapsed))

	var names []string
	for _, s := range segments {
		names = append(names, s.Filename)
	}
	logging.ClipEvent(m.log, cameraID, filename, triggerTime, duration.Seconds(), names)

	logging.CameraEvent(m.log, cameraID, "clip_generation_completed", filename, map[string]interface{}{
		"job_id":                  job.ID,
		"clip_path":               job.OutputPath,
		"processing_time_seconds": elapsed.Seconds(),
		"mode":                    job.Mode,
		"segments_used":           len(segments),
	})

	return job
}

// GenerateAll runs GenerateClip for every camera with a registered buffer.
func (m *Materialiser) GenerateAll(ctx context.Context, triggerTime time.Time, duration time.Duration) []Job {
	var jobs []Job
	for cameraID := range m.buffers.All() {
		jobs = append(jobs, m.GenerateClip(ctx, cameraID, triggerTime, duration))
	}
	return jobs
}

// selectSegments implements ClipGenerator._get_segments_for_clip's
// fallback ladder: exact time-range -> recent(duration) -> drop
// vanished-from-disk files -> if still short, retry against the whole
// buffer window and warn.
func (m *Materialiser) selectSegments(buf *buffer.CircularBuffer, cameraID string, triggerTime time.Time, duration time.Duration) []buffer.Segment {
	start := triggerTime.Add(-duration)

	segments := buf.Range(start, triggerTime)
	if len(segments) == 0 {
		segments = buf.Recent(duration)
	}

	valid := filterExisting(segments, m.log, cameraID)

	minimumChunks := int(math.Max(1, math.Floor(duration.Seconds()/m.chunkDuration.Seconds())))
	if len(valid) < minimumChunks {
		logging.CameraWarn(m.log, cameraID, "insufficient_segments", "not enough segments for requested duration", map[string]interface{}{
			"available_segments": len(valid),
			"minimum_required":   minimumChunks,
		})

		wholeBuffer := time.Duration(buf.Info().MaxDurationSec) * time.Second
		allBuffered := buf.Recent(wholeBuffer)
		valid = filterExisting(allBuffered, m.log, cameraID)

		if len(valid) < minimumChunks {
			logging.CameraError(m.log, cameraID, "critical_insufficient_segments", "impossible to satisfy requested duration, proceeding short", nil)
		}
	}

	return valid
}

func filterExisting(segments []buffer.Segment, log zerolog.Logger, cameraID string) []buffer.Segment {
	var out []buffer.Segment
	for _, s := range segments {
		if _, err := os.Stat(s.Path); err == nil {
			out = append(out, s)
		} else {
			logging.CameraWarn(log, cameraID, "segment_missing", s.Filename, nil)
		}
	}
	return out
}

// canUseFastMode mirrors ClipGenerator._can_use_fast_mode: the trigger
// must land within 0.5s of a chunk-duration boundary, and the requested
// duration must be an exact multiple of the chunk duration.
func canUseFastMode(triggerTime time.Time, duration, chunkDuration time.Duration) bool {
	secondsInMinute := float64(triggerTime.Second()) + float64(triggerTime.Nanosecond())/1e9
	chunkSeconds := chunkDuration.Seconds()

	boundary := math.Round(secondsInMinute/chunkSeconds) * chunkSeconds
	nearBoundary := math.Abs(secondsInMinute-boundary) <= 0.5

	durationAligned := math.Mod(duration.Seconds(), chunkSeconds) == 0

	return nearBoundary && durationAligned
}

func clipFilename(cameraID string, triggerTime time.Time) string {
	return fmt.Sprintf("%s_clip_%sZ.mp4", cameraID, triggerTime.UTC().Format("20060102_150405"))
}

// generateFast concatenates the tail segments with -c copy: no re-encode.
func (m *Materialiser) generateFast(ctx context.Context, segments []buffer.Segment, outputPath string, duration time.Duration) error {
	needed := int(math.Ceil(duration.Seconds() / m.chunkDuration.Seconds()))
	use := tail(segments, needed)
	if len(use) == 0 {
		return fmt.Errorf("clip: no segments to concatenate")
	}

	listPath, err := writeConcatList(use)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	tmpOut := outputPath + ".tmp"
	cctx, cancel := context.WithTimeout(ctx, fastConcatTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, m.ffmpegPath,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		tmpOut,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("clip: fast concat failed: %w: %s", err, out)
	}

	return os.Rename(tmpOut, outputPath)
}

// generatePrecise concatenates a superset of segments, then re-encodes a
// precisely-trimmed cut with libx264/aac, mirroring
// ClipGenerator._generate_clip_precise.
func (m *Materialiser) generatePrecise(ctx context.Context, segments []buffer.Segment, outputPath string, triggerTime time.Time, duration time.Duration) error {
	totalNeeded := duration + preciseLookbackSlack
	needed := int(math.Ceil(totalNeeded.Seconds() / m.chunkDuration.Seconds()))
	use := tail(segments, needed)
	if len(use) == 0 {
		return fmt.Errorf("clip: no segments to concatenate")
	}

	tmpConcat, err := os.CreateTemp("", "ringcam-concat-*.mp4")
	if err != nil {
		return fmt.Errorf("clip: creating temp concat file: %w", err)
	}
	tmpConcatPath := tmpConcat.Name()
	tmpConcat.Close()
	defer os.Remove(tmpConcatPath)

	if err := m.concatenateSegments(ctx, use, tmpConcatPath); err != nil {
		return err
	}

	clipStart := triggerTime.Add(-duration)
	startOffset := clipStart.Sub(use[0].WallTime).Seconds()
	if startOffset < 0 {
		startOffset = 0
	}

	tmpOut := outputPath + ".tmp"
	cctx, cancel := context.WithTimeout(ctx, preciseCutTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, m.ffmpegPath,
		"-y",
		"-i", tmpConcatPath,
		"-ss", fmt.Sprintf("%.3f", startOffset),
		"-t", fmt.Sprintf("%.3f", duration.Seconds()),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-avoid_negative_ts", "make_zero",
		tmpOut,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("clip: precise cut failed: %w: %s", err, out)
	}

	return os.Rename(tmpOut, outputPath)
}

func (m *Materialiser) concatenateSegments(ctx context.Context, segments []buffer.Segment, outputPath string) error {
	listPath, err := writeConcatList(segments)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	cctx, cancel := context.WithTimeout(ctx, preciseConcatTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, m.ffmpegPath,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("clip: segment concatenation failed: %w: %s", err, out)
	}
	return nil
}

func writeConcatList(segments []buffer.Segment) (string, error) {
	f, err := os.CreateTemp("", "ringcam-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("clip: creating concat list: %w", err)
	}
	defer f.Close()

	for _, s := range segments {
		abs, err := filepath.Abs(s.Path)
		if err != nil {
			abs = s.Path
		}
		fmt.Fprintf(f, "file '%s'\n", filepath.ToSlash(abs))
	}
	return f.Name(), nil
}

func tail(segments []buffer.Segment, n int) []buffer.Segment {
	if n <= 0 || len(segments) <= n {
		return segments
	}
	return segments[len(segments)-n:]
}

// Stats mirrors ClipGenerator.get_generation_stats.
type Stats struct {
	ClipsGenerated           int64
	TotalProcessingSeconds   float64
	AverageProcessingSeconds float64
	ClipsDirectory           string
	CurrentClipsCount        int
}

// Stats returns the materialiser's running statistics.
func (m *Materialiser) Stats() Stats {
	generated := atomic.LoadInt64(&m.clipsGenerated)
	totalNanos := atomic.LoadInt64(&m.totalProcessingNanos)

	s := Stats{
		ClipsGenerated:         generated,
		TotalProcessingSeconds: time.Duration(totalNanos).Seconds(),
		ClipsDirectory:         m.clipsDir,
	}
	if generated > 0 {
		s.AverageProcessingSeconds = s.TotalProcessingSeconds / float64(generated)
	}

	matches, _ := filepath.Glob(filepath.Join(m.clipsDir, "*_clip_*.mp4"))
	s.CurrentClipsCount = len(matches)
	return s
}
