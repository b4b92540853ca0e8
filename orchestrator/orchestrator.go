// Package orchestrator wires the capture, watcher, buffer, clip, trigger
// and monitor packages into one running system: one capture/watcher/buffer
// triple per configured camera, a single materialiser worker draining the
// trigger queue, the resilience monitor, and the retention sweeper.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ringcam/ringcam/buffer"
	"github.com/ringcam/ringcam/capture"
	"github.com/ringcam/ringcam/clip"
	"github.com/ringcam/ringcam/config"
	"github.com/ringcam/ringcam/logging"
	"github.com/ringcam/ringcam/monitor"
	"github.com/ringcam/ringcam/trigger"
	"github.com/ringcam/ringcam/watcher"
)

// camera bundles one configured camera's running subsystems.
type camera struct {
	cfg        config.Camera
	supervisor *capture.Supervisor
	watcher    *watcher.Watcher
	buf        *buffer.CircularBuffer
}

// System owns every running subsystem and the top-level start/stop
// lifecycle, the Go equivalent of the original system's top-level
// orchestration script.
type System struct {
	cfg *config.Config
	log zerolog.Logger

	cameras map[string]*camera
	buffers *buffer.Manager

	materialiser *clip.Materialiser
	retention    *clip.RetentionSweeper
	resilience   *monitor.Resilience

	queue    *trigger.Queue
	keyboard *trigger.Keyboard
	http     *trigger.HTTP

	wg sync.WaitGroup

	stop chan struct{}
	done chan struct{}
}

// New builds a System from configuration; call Run to start it.
func New(cfg *config.Config, log zerolog.Logger) *System {
	s := &System{
		cfg:     cfg,
		log:     log,
		cameras: make(map[string]*camera),
		buffers: buffer.NewManager(),
		queue:   trigger.NewQueue(32),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	chunkDuration := time.Duration(cfg.ChunkDuration) * time.Second
	bufferDuration := time.Duration(cfg.BufferSeconds) * time.Second

	for _, camCfg := range cfg.Cameras {
		bufLog := logging.For(log, "buffer")
		buf := buffer.NewCircularBuffer(camCfg.Name, bufferDuration, chunkDuration, bufLog)
		s.buffers.Add(camCfg.Name, buf)

		sup := capture.New(capture.Options{
			CameraID:                camCfg.Name,
			RTSPURL:                 camCfg.URL,
			RTSPTransport:           cfg.RTSPTransport,
			TempDir:                 camCfg.TempDir,
			ChunkDuration:           chunkDuration,
			FFmpegPath:              cfg.FFmpegPath,
			KeyframeIntervalSeconds: cfg.FFmpegKeyframeInterval,
			Preset:                  cfg.FFmpegPreset,
			CRF:                     cfg.FFmpegCRF,
			ReconnectInitialDelay:   time.Duration(cfg.ReconnectInitialDelay) * time.Second,
			ReconnectMaxDelay:       time.Duration(cfg.ReconnectMaxDelay) * time.Second,
			ReconnectMaxAttempts:    cfg.ReconnectMaxAttempts,
		}, logging.For(log, "capture"))

		w := watcher.New(camCfg.Name, camCfg.TempDir, logging.For(log, "watcher"))

		s.cameras[camCfg.Name] = &camera{cfg: camCfg, supervisor: sup, watcher: w, buf: buf}
	}

	s.materialiser = clip.New(logging.For(log, "clip"), s.buffers, cfg.ClipsDir, cfg.FFmpegPath, chunkDuration)
	s.retention = clip.NewRetentionSweeper(cfg.ClipsDir, time.Duration(cfg.ClipMaxAgeDays)*24*time.Hour, logging.For(log, "clip"))

	restarters := make(map[string]monitor.Restarter, len(s.cameras))
	for id, cam := range s.cameras {
		restarters[id] = cam.supervisor
	}
	s.resilience = monitor.NewResilience(logging.For(log, "monitor"), cfg.ClipsDir, cfg.TempDir, restarters, s.buffers)

	defaultDuration := time.Duration(cfg.FinalClipDuration) * time.Second
	if cfg.TriggerMode == "keyboard" || cfg.TriggerMode == "http" {
		s.keyboard = trigger.NewKeyboard(s.queue, defaultDuration, logging.For(log, "trigger"))
	}
	if cfg.TriggerMode == "http" {
		s.http = trigger.NewHTTP(s.queue, defaultDuration, s, fmt.Sprintf(":%d", cfg.HTTPPort), logging.For(log, "trigger"))
	}

	return s
}

// Run starts every subsystem, blocks until shutdown is requested (via
// Stop, an OS signal, or the keyboard trigger's quit command), then tears
// everything down. Mirrors the original orchestration script's
// start-everything / wait-for-signal / stop-everything shape.
func (s *System) Run(ctx context.Context) error {
	var g errgroup.Group
	for id, cam := range s.cameras {
		cam := cam
		id := id
		g.Go(func() error {
			if err := cam.supervisor.Start(); err != nil {
				return fmt.Errorf("orchestrator: starting capture for %s: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, cam := range s.cameras {
		cam := cam
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			cam.watcher.Run()
		}()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.pumpArrivals(cam)
		}()
	}

	s.resilience.Start()

	if err := s.retention.Start(s.cfg.ClipRetentionCron); err != nil {
		logging.Error(s.log, "retention_start", err, nil)
	}

	if s.keyboard != nil {
		s.keyboard.Start()
	}
	if s.http != nil {
		s.http.Start()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runRecoveryLoop()
	}()

	logging.SystemEvent(s.log, "system_started", "ringcam started", map[string]interface{}{
		"cameras":      len(s.cameras),
		"trigger_mode": s.cfg.TriggerMode,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
	case <-sigCh:
	case <-s.stop:
	case <-s.quitCh():
	}

	return s.shutdown()
}

// quitCh adapts the keyboard trigger's Quit channel (nil-safe) for the
// select in Run.
func (s *System) quitCh() <-chan struct{} {
	if s.keyboard == nil {
		return nil
	}
	return s.keyboard.Quit
}

// Stop requests an orderly shutdown from outside Run's goroutine.
func (s *System) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *System) shutdown() error {
	logging.SystemEvent(s.log, "system_stopping", "shutting down", nil)

	close(s.done)

	for _, cam := range s.cameras {
		cam.watcher.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = cam.supervisor.Stop(ctx)
		cancel()
	}

	if s.keyboard != nil {
		s.keyboard.Stop()
	}
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = s.http.Stop(ctx)
		cancel()
	}

	s.retention.Stop()
	s.resilience.Stop()

	// Bounded join: goroutines still running after 5s are abandoned.
	joined := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(5 * time.Second):
		logging.SystemWarn(s.log, "shutdown_join_timeout", "abandoning goroutines that did not stop within 5s", nil)
	}

	logging.SystemEvent(s.log, "system_stopped", "shutdown complete", nil)
	return nil
}

// pumpArrivals feeds one camera's watcher arrivals into its buffer and
// notifies its supervisor of liveness.
func (s *System) pumpArrivals(cam *camera) {
	chunkDuration := time.Duration(s.cfg.ChunkDuration) * time.Second
	for {
		select {
		case <-s.done:
			return
		case arrival, ok := <-cam.watcher.Arrivals:
			if !ok {
				return
			}
			seg := buffer.NewSegment(arrival.CameraID, arrival.Path, arrival.Size, chunkDuration)
			cam.buf.Add(seg)
			cam.supervisor.NoteSegment()
		}
	}
}

// runWorker drains the trigger queue with a single materialiser worker, so
// clip generation for different triggers never overlaps.
func (s *System) runWorker() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.queue.Requests():
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
			if req.CameraID == "all" || req.CameraID == "" {
				s.materialiser.GenerateAll(ctx, req.Time, req.Duration)
			} else {
				s.materialiser.GenerateClip(ctx, req.CameraID, req.Time, req.Duration)
			}
			cancel()
		}
	}
}

// runRecoveryLoop re-evaluates every monitored component every 30 seconds
// and retries recovery for anything still failed or critical, mirroring
// the original system's periodic force_recovery_all call.
func (s *System) runRecoveryLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.resilience.ForceRecoveryAll()
		}
	}
}

// StatusSnapshot implements trigger.StatusProvider for the HTTP /status
// endpoint: overall resilience summary plus clip generation statistics.
func (s *System) StatusSnapshot() map[string]interface{} {
	summary := s.resilience.Summary()
	stats := s.materialiser.Stats()

	cameras := make(map[string]interface{}, len(s.cameras))
	for id, cam := range s.cameras {
		cameras[id] = cam.supervisor.Info()
	}

	buffers := make(map[string]interface{}, len(s.cameras))
	for id, cam := range s.cameras {
		buffers[id] = cam.buf.Info()
	}

	return map[string]interface{}{
		"health": map[string]interface{}{
			"overall_status":   summary.OverallStatus,
			"uptime_seconds":   summary.SystemUptimeSeconds,
			"recovery_actions": summary.RecoveryActions,
		},
		"cameras": cameras,
		"buffers": buffers,
		"clips": map[string]interface{}{
			"generated":               stats.ClipsGenerated,
			"average_processing_secs": stats.AverageProcessingSeconds,
			"directory":               filepath.Clean(stats.ClipsDirectory),
			"current_count":           stats.CurrentClipsCount,
		},
	}
}
