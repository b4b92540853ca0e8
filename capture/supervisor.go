// Package capture runs and supervises the ffmpeg child process that
// ingests one camera's RTSP stream and segments it to disk.
package capture

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/ringcam/ringcam/logging"
)

// State is the Capture Supervisor's lifecycle state machine.
type State int

const (
	Idle State = iota
	Starting
	Running
	Degraded
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Degraded:
		return "degraded"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Options configures a Supervisor.
type Options struct {
	CameraID      string
	RTSPURL       string
	RTSPTransport string
	TempDir       string
	ChunkDuration time.Duration

	FFmpegPath              string
	KeyframeIntervalSeconds int
	Preset                  string
	CRF                     int

	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	ReconnectMaxAttempts  int // 0 = unlimited
}

// Info is the read-only snapshot exposed over /status.
type Info struct {
	CameraID          string
	State             string
	PID               int
	UptimeSeconds     float64
	TotalSegments     int
	LastSegmentAgeSec float64
	ReconnectAttempts int
}

// Supervisor owns one camera's ffmpeg capture process.
type Supervisor struct {
	opts Options
	log  zerolog.Logger

	mu    sync.Mutex
	state State
	cmd   *exec.Cmd

	startTime         time.Time
	lastSegmentTime   time.Time
	reconnectAttempts int
	totalSegments     int

	stopRequested bool
	stopped       chan struct{}
}

// New builds a Supervisor; call Start to begin capture.
func New(opts Options, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		opts:    opts,
		log:     log,
		state:   Idle,
		stopped: make(chan struct{}),
	}
}

// NoteSegment is called by the orchestrator whenever the segment watcher
// observes a new file for this camera, resetting the reconnect backoff and
// refreshing the "last segment" liveness used by the resilience monitor.
func (s *Supervisor) NoteSegment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSegmentTime = time.Now()
	s.totalSegments++
	if s.reconnectAttempts > 0 {
		s.reconnectAttempts = 0
	}
	if s.state == Degraded {
		s.state = Running
	}
}

// Start launches the ffmpeg capture process and its supervising goroutine.
// A spawn failure is not fatal: it is routed through the same back-off
// counter as a post-launch crash, so one camera's bad URL or a transient
// fork failure never aborts the whole system.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.state == Running || s.state == Starting {
		s.mu.Unlock()
		return nil
	}
	s.state = Starting
	s.stopRequested = false
	s.mu.Unlock()

	s.spawn()
	return nil
}

func (s *Supervisor) spawn() {
	args := s.buildArgs()

	cmd := exec.Command(s.opts.FFmpegPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logging.CameraError(s.log, s.opts.CameraID, "capture_start_failed", err.Error(), nil)
		s.scheduleReconnect()
		return
	}

	s.mu.Lock()
	s.cmd = cmd
	s.state = Running
	s.startTime = time.Now()
	s.mu.Unlock()

	logging.CameraEvent(s.log, s.opts.CameraID, "capture_started", "ffmpeg capture started", map[string]interface{}{
		"pid": cmd.Process.Pid,
	})

	go s.supervise(cmd)
}

// buildArgs constructs the ffmpeg argv for continuous capture + fixed-size
// segmentation, mirroring RTSPCapture._build_ffmpeg_command.
func (s *Supervisor) buildArgs() []string {
	segmentPattern := fmt.Sprintf("%s/%s_%%Y%%m%%d_%%H%%M%%S.mp4", s.opts.TempDir, s.opts.CameraID)
	gop := s.opts.KeyframeIntervalSeconds * 30

	return []string{
		"-y",
		"-loglevel", "warning",
		"-rtsp_transport", s.opts.RTSPTransport,
		"-i", s.opts.RTSPURL,
		"-c:v", "libx264",
		"-preset", s.opts.Preset,
		"-crf", fmt.Sprint(s.opts.CRF),
		"-g", fmt.Sprint(gop),
		"-keyint_min", fmt.Sprint(gop),
		"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", s.opts.KeyframeIntervalSeconds),
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "segment",
		"-segment_time", fmt.Sprint(int(s.opts.ChunkDuration.Seconds())),
		"-segment_format", "mp4",
		"-segment_atclocktime", "1",
		"-strftime", "1",
		segmentPattern,
	}
}

// supervise waits for the ffmpeg process to exit and schedules a
// reconnect, unless a stop was requested.
func (s *Supervisor) supervise(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	stopRequested := s.stopRequested
	s.mu.Unlock()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}

	logging.CameraEvent(s.log, s.opts.CameraID, "capture_ended", "ffmpeg process exited", map[string]interface{}{
		"exit_code": exitCode,
	})

	if stopRequested {
		s.mu.Lock()
		s.state = Stopped
		s.mu.Unlock()
		close(s.stopped)
		return
	}

	s.scheduleReconnect()
}

// scheduleReconnect implements delay = min(initial*2^(attempts-1), max),
// per RTSPCapture._schedule_reconnect.
func (s *Supervisor) scheduleReconnect() {
	s.mu.Lock()
	s.reconnectAttempts++
	attempts := s.reconnectAttempts
	maxAttempts := s.opts.ReconnectMaxAttempts
	s.state = Degraded
	s.mu.Unlock()

	if maxAttempts > 0 && attempts > maxAttempts {
		logging.CameraError(s.log, s.opts.CameraID, "max_reconnects_exceeded", "giving up on reconnect", map[string]interface{}{
			"attempts": attempts,
		})
		s.mu.Lock()
		s.state = Failed
		s.mu.Unlock()
		return
	}

	delay := backoffDelay(s.opts.ReconnectInitialDelay, s.opts.ReconnectMaxDelay, attempts)

	logging.ReconnectionEvent(s.log, s.opts.CameraID, attempts, maxAttempts, delay.Seconds())

	go func() {
		time.Sleep(delay)

		s.mu.Lock()
		stopRequested := s.stopRequested
		s.mu.Unlock()
		if stopRequested {
			return
		}

		s.spawn()
	}()
}

// Stop signals the ffmpeg process group (SIGTERM, escalating to SIGKILL)
// and waits for its supervising goroutine to acknowledge the exit.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Stopped || s.state == Idle {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = true
	s.state = Stopping
	cmd := s.cmd
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		pgid = cmd.Process.Pid
	}

	unix.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-s.stopped:
		return nil
	case <-time.After(5 * time.Second):
		unix.Kill(-pgid, syscall.SIGKILL)
	case <-ctx.Done():
		unix.Kill(-pgid, syscall.SIGKILL)
	}

	select {
	case <-s.stopped:
	case <-time.After(2 * time.Second):
	}
	return nil
}

// Restart stops and restarts the capture, used by the resilience monitor.
func (s *Supervisor) Restart(ctx context.Context) error {
	logging.CameraEvent(s.log, s.opts.CameraID, "capture_restarting", "restarting capture", nil)
	if err := s.Stop(ctx); err != nil {
		return err
	}
	time.Sleep(2 * time.Second)

	s.mu.Lock()
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	return s.Start()
}

// backoffDelay implements delay = min(initial*2^(attempts-1), max).
func backoffDelay(initial, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := initial * time.Duration(1<<uint(attempts-1))
	if delay > max {
		delay = max
	}
	return delay
}

// Info returns the current state snapshot.
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{
		CameraID:          s.opts.CameraID,
		State:             s.state.String(),
		TotalSegments:     s.totalSegments,
		ReconnectAttempts: s.reconnectAttempts,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		info.PID = s.cmd.Process.Pid
	}
	if !s.startTime.IsZero() {
		info.UptimeSeconds = time.Since(s.startTime).Seconds()
	}
	if !s.lastSegmentTime.IsZero() {
		info.LastSegmentAgeSec = time.Since(s.lastSegmentTime).Seconds()
	}
	return info
}
