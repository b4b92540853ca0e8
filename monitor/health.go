// Package monitor implements the resilience loop: per-component health
// checks on their own schedules, escalating to camera restarts or
// emergency buffer eviction.
package monitor

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ringcam/ringcam/logging"
)

// Status is the component health state machine.
type Status int

const (
	Healthy Status = iota
	Warning
	Critical
	Failed
	Recovering
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	case Failed:
		return "failed"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// Report is the tagged result of one health check: Status identifies which
// variant the rest of the fields should be read as (a metrics snapshot for
// Healthy/Warning/Critical, an error for Failed), rather than an
// untyped map of optional keys.
type Report struct {
	Component string
	Status    Status
	Metrics   map[string]float64
	Err       error
}

// transition is one recorded status change.
type transition struct {
	At     time.Time
	Status Status
}

// CheckFunc performs one health check for a component.
type CheckFunc func() Report

// Checker runs CheckFunc on its own ticker and keeps a bounded history of
// status transitions, mirroring ComponentMonitor.
type Checker struct {
	name     string
	interval time.Duration
	check    CheckFunc
	log      zerolog.Logger

	onChange func(old, new Status, report Report)

	mu         sync.Mutex
	status     Status
	lastCheck  time.Time
	errorCount int
	warnCount  int
	lastErr    string
	metrics    map[string]float64
	history    []transition
	startTime  time.Time

	stop chan struct{}
	done chan struct{}
}

const maxHistoryEntries = 100

// NewChecker builds a Checker; call Start to begin its loop.
func NewChecker(name string, interval time.Duration, check CheckFunc, onChange func(old, new Status, report Report), log zerolog.Logger) *Checker {
	return &Checker{
		name:      name,
		interval:  interval,
		check:     check,
		onChange:  onChange,
		log:       log,
		status:    Healthy,
		startTime: time.Now(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the check loop in a goroutine.
func (c *Checker) Start() {
	go c.run()
}

func (c *Checker) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.runOnce()
		}
	}
}

func (c *Checker) runOnce() {
	report := c.check()

	c.mu.Lock()
	old := c.status
	c.status = report.Status
	c.lastCheck = time.Now()
	c.metrics = report.Metrics
	if report.Err != nil {
		c.errorCount++
		c.lastErr = report.Err.Error()
	}
	if report.Status == Warning {
		c.warnCount++
	}
	changed := old != report.Status
	if changed {
		c.history = append(c.history, transition{At: c.lastCheck, Status: report.Status})
		if len(c.history) > maxHistoryEntries {
			c.history = c.history[len(c.history)-maxHistoryEntries:]
		}
	}
	c.mu.Unlock()

	if changed {
		level := "info"
		if report.Status == Warning || report.Status == Critical {
			level = "warning"
		}
		logging.SystemEvent(c.log, "component_status_change", c.name+": "+old.String()+" -> "+report.Status.String(), map[string]interface{}{
			"component":  c.name,
			"old_status": old.String(),
			"new_status": report.Status.String(),
			"level":      level,
		})
		if c.onChange != nil {
			c.onChange(old, report.Status, report)
		}
	}
}

// Stop ends the check loop.
func (c *Checker) Stop() {
	close(c.stop)
	<-c.done
}

// Summary is the read-only snapshot for /status.
type Summary struct {
	Component  string
	Status     string
	UptimeSec  float64
	ErrorCount int
	WarnCount  int
	LastErr    string
	Metrics    map[string]float64
}

// Summary returns the Checker's current state.
func (c *Checker) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Summary{
		Component:  c.name,
		Status:     c.status.String(),
		UptimeSec:  time.Since(c.startTime).Seconds(),
		ErrorCount: c.errorCount,
		WarnCount:  c.warnCount,
		LastErr:    c.lastErr,
		Metrics:    c.metrics,
	}
}

// History returns the last recorded status transitions, oldest first.
func (c *Checker) History() []Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Summary, len(c.history))
	for i, t := range c.history {
		out[i] = Summary{Component: c.name, Status: t.Status.String()}
	}
	return out
}
