package monitor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	cpuutil "github.com/shirou/gopsutil/v4/cpu"
	diskutil "github.com/shirou/gopsutil/v4/disk"
	memutil "github.com/shirou/gopsutil/v4/mem"
	sensorsutil "github.com/shirou/gopsutil/v4/sensors"

	"github.com/ringcam/ringcam/buffer"
	"github.com/ringcam/ringcam/capture"
	"github.com/ringcam/ringcam/logging"
)

// Restarter is the subset of capture.Supervisor the resilience monitor
// needs, so this package doesn't have to depend on concrete orchestration
// wiring — only the capability to restart.
type Restarter interface {
	Restart(ctx context.Context) error
	Info() capture.Info
}

// Thresholds carried over verbatim from the original resilience manager.
const (
	cpuWarnPercent  = 70.0
	cpuCritPercent  = 90.0
	memWarnPercent  = 85.0
	memCritPercent  = 95.0
	diskWarnPercent = 85.0
	diskCritPercent = 95.0
	tempWarnC       = 70.0
	tempCritC       = 80.0

	lastSegmentWarnSec = 30.0
	lastSegmentCritSec = 60.0
	lastSegmentFailSec = 120.0

	reconnectWarnCount = 5
	reconnectCritCount = 10

	bufferUnderfillWarnPercent = 20.0
	tempDirWarnPercent         = 75.0
	tempDirCritPercent         = 90.0
)

// Resilience aggregates the system/camera/buffer Checkers and reacts to
// status changes with camera restarts or emergency buffer eviction.
type Resilience struct {
	log zerolog.Logger

	clipsDir string
	tempDir  string

	cameras map[string]Restarter
	buffers *buffer.Manager

	systemChecker  *Checker
	bufferChecker  *Checker
	cameraCheckers map[string]*Checker

	recoveryActionsTaken int64
	systemStart          time.Time
}

// NewResilience builds the aggregator; call Start to begin all checks.
func NewResilience(log zerolog.Logger, clipsDir, tempDir string, cameras map[string]Restarter, buffers *buffer.Manager) *Resilience {
	return &Resilience{
		log:            log,
		clipsDir:       clipsDir,
		tempDir:        tempDir,
		cameras:        cameras,
		buffers:        buffers,
		cameraCheckers: make(map[string]*Checker),
		systemStart:    time.Now(),
	}
}

// Start launches the system check (30s), one check per camera (10s), and
// the buffer check (15s), matching the original periods exactly.
func (r *Resilience) Start() {
	r.systemChecker = NewChecker("system", 30*time.Second, r.checkSystem, r.onSystemChange, r.log)
	r.systemChecker.Start()

	r.bufferChecker = NewChecker("buffer", 15*time.Second, r.checkBuffer, r.onBufferChange, r.log)
	r.bufferChecker.Start()

	for id := range r.cameras {
		cameraID := id
		checker := NewChecker(cameraID, 10*time.Second, func() Report {
			return r.checkCamera(cameraID)
		}, r.onCameraChange, r.log)
		r.cameraCheckers[cameraID] = checker
		checker.Start()
	}

	logging.SystemEvent(r.log, "resilience_monitoring_started", "resilience monitoring started", map[string]interface{}{
		"components": len(r.cameraCheckers) + 2,
	})
}

// Stop ends every Checker's loop.
func (r *Resilience) Stop() {
	r.systemChecker.Stop()
	r.bufferChecker.Stop()
	for _, c := range r.cameraCheckers {
		c.Stop()
	}
	logging.SystemEvent(r.log, "resilience_monitoring_stopped", "resilience monitoring stopped", nil)
}

func (r *Resilience) checkSystem() Report {
	metrics := map[string]float64{}
	status := Healthy

	if percentages, err := cpuutil.Percent(time.Second, false); err == nil && len(percentages) > 0 {
		metrics["cpu_percent"] = percentages[0]
		status = escalate(status, percentages[0], cpuWarnPercent, cpuCritPercent)
	}

	if vm, err := memutil.VirtualMemory(); err == nil {
		metrics["memory_percent"] = vm.UsedPercent
		metrics["memory_available_gb"] = float64(vm.Available) / (1024 * 1024 * 1024)
		status = escalate(status, vm.UsedPercent, memWarnPercent, memCritPercent)
	}

	if usage, err := diskutil.Usage(r.clipsDir); err == nil {
		metrics["disk_percent"] = usage.UsedPercent
		metrics["disk_free_gb"] = float64(usage.Free) / (1024 * 1024 * 1024)
		status = escalate(status, usage.UsedPercent, diskWarnPercent, diskCritPercent)
	}

	if runtime.GOOS == "linux" {
		if temps, err := sensorsutil.SensorsTemperatures(); err == nil {
			for _, t := range temps {
				if t.Temperature <= 0 {
					continue
				}
				metrics["temp_"+t.SensorKey] = t.Temperature
				status = escalate(status, t.Temperature, tempWarnC, tempCritC)
			}
		}
	}

	return Report{Component: "system", Status: status, Metrics: metrics}
}

func (r *Resilience) checkCamera(cameraID string) Report {
	restarter, ok := r.cameras[cameraID]
	if !ok {
		return Report{Component: cameraID, Status: Failed, Err: fmt.Errorf("no supervisor for %s", cameraID)}
	}

	info := restarter.Info()
	metrics := map[string]float64{
		"last_segment_age_seconds": info.LastSegmentAgeSec,
		"reconnect_attempts":       float64(info.ReconnectAttempts),
		"total_segments_captured":  float64(info.TotalSegments),
	}

	if info.State == "failed" || info.State == "stopped" {
		return Report{Component: cameraID, Status: Failed, Metrics: metrics, Err: fmt.Errorf("capture not running")}
	}

	status := Healthy
	if info.LastSegmentAgeSec > lastSegmentWarnSec {
		status = Warning
	}
	if info.LastSegmentAgeSec > lastSegmentCritSec {
		status = Critical
	}
	if info.LastSegmentAgeSec > lastSegmentFailSec {
		status = Failed
	}
	if info.ReconnectAttempts > reconnectWarnCount && status < Warning {
		status = Warning
	}
	if info.ReconnectAttempts > reconnectCritCount && status < Critical {
		status = Critical
	}

	return Report{Component: cameraID, Status: status, Metrics: metrics}
}

func (r *Resilience) checkBuffer() Report {
	metrics := map[string]float64{}
	status := Healthy

	var totalSegments int
	var totalBytes int64
	for cameraID, buf := range r.buffers.All() {
		info := buf.Info()
		totalSegments += info.SegmentsCount
		totalBytes += info.TotalSizeBytes
		metrics[cameraID+"_segments"] = float64(info.SegmentsCount)
		metrics[cameraID+"_usage_percent"] = info.BufferUsagePercent

		if info.BufferUsagePercent < bufferUnderfillWarnPercent && status < Warning {
			status = Warning
		}
	}
	metrics["total_segments"] = float64(totalSegments)
	metrics["total_size_mb"] = float64(totalBytes) / (1024 * 1024)

	if usage, err := diskutil.Usage(r.tempDir); err == nil {
		metrics["temp_dir_usage_percent"] = usage.UsedPercent
		status = escalate(status, usage.UsedPercent, tempDirWarnPercent, tempDirCritPercent)
	}

	return Report{Component: "buffer", Status: status, Metrics: metrics}
}

func escalate(current Status, value, warn, crit float64) Status {
	next := current
	if value > warn && next < Warning {
		next = Warning
	}
	if value > crit && next < Critical {
		next = Critical
	}
	return next
}

func (r *Resilience) onSystemChange(old, new Status, report Report) {
	if new == Critical {
		logging.SystemCritical(r.log, "system_critical", "system in critical state, running emergency actions", nil)
		if report.Metrics["memory_percent"] > memCritPercent {
			r.emergencyBufferCleanup()
		}
	}
}

func (r *Resilience) onCameraChange(old, new Status, report Report) {
	if new == Failed || new == Critical {
		r.attemptCameraRecovery(report.Component)
	}
}

func (r *Resilience) onBufferChange(old, new Status, report Report) {
	if new == Critical {
		r.emergencyBufferCleanup()
	}
}

func (r *Resilience) attemptCameraRecovery(cameraID string) {
	restarter, ok := r.cameras[cameraID]
	if !ok {
		return
	}

	logging.SystemEvent(r.log, "camera_recovery_attempt", "attempting camera recovery", map[string]interface{}{"camera_id": cameraID})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := restarter.Restart(ctx); err != nil {
		logging.SystemEvent(r.log, "camera_recovery_failed", "camera recovery failed", map[string]interface{}{"camera_id": cameraID, "error": err.Error()})
		return
	}
	r.recoveryActionsTaken++
	logging.SystemEvent(r.log, "camera_recovery_success", "camera recovered", map[string]interface{}{"camera_id": cameraID})
}

func (r *Resilience) emergencyBufferCleanup() {
	logging.SystemWarn(r.log, "emergency_buffer_cleanup", "running emergency buffer cleanup", nil)
	for _, buf := range r.buffers.All() {
		buf.EmergencyEvict()
	}
	r.recoveryActionsTaken++
}

// ForceRecoveryAll re-evaluates every component and retries recovery for
// anything still failed/critical, matching force_recovery_all.
func (r *Resilience) ForceRecoveryAll() {
	for cameraID, checker := range r.cameraCheckers {
		s := checker.Summary()
		if s.Status == Failed.String() || s.Status == Critical.String() {
			r.attemptCameraRecovery(cameraID)
		}
	}
	if r.bufferChecker.Summary().Status == Critical.String() {
		r.emergencyBufferCleanup()
	}
	logging.SystemEvent(r.log, "forced_recovery_completed", "forced recovery pass completed", nil)
}

// OverallSummary is the overall system health rollup for /status.
type OverallSummary struct {
	OverallStatus       string
	SystemUptimeSeconds float64
	RecoveryActions     int64
	Components          map[string]Summary
}

// Summary rolls up every checker into one overall status, matching
// get_system_health_summary.
func (r *Resilience) Summary() OverallSummary {
	components := map[string]Summary{}
	if r.systemChecker != nil {
		components["system"] = r.systemChecker.Summary()
	}
	if r.bufferChecker != nil {
		components["buffer"] = r.bufferChecker.Summary()
	}
	overall := Healthy
	for name, checker := range r.cameraCheckers {
		components[name] = checker.Summary()
	}
	for _, s := range components {
		switch s.Status {
		case Failed.String():
			overall = Failed
		case Critical.String():
			if overall != Failed {
				overall = Critical
			}
		case Warning.String():
			if overall == Healthy {
				overall = Warning
			}
		}
	}

	return OverallSummary{
		OverallStatus:       overall.String(),
		SystemUptimeSeconds: time.Since(r.systemStart).Seconds(),
		RecoveryActions:     r.recoveryActionsTaken,
		Components:          components,
	}
}
