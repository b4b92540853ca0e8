// Package logging builds the structured logger shared by every component
// and the named-event helpers that mirror the original system's
// log_camera_event / log_buffer_event / log_system_event / log_clip_event
// taxonomy.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger for the given LOG_LEVEL / LOG_FORMAT values,
// writing to stdout. Use NewWithFile to also tee to a rotating log file,
// mirroring the original system's dual StreamHandler + RotatingFileHandler
// setup.
func New(level, format string) zerolog.Logger {
	return newLogger(level, format, os.Stdout)
}

// NewWithFile builds the root logger the same way as New, but also tees
// output to a size-rotated log file (10MB per file, 5 backups kept),
// matching logger.py's RotatingFileHandler(maxBytes=10*1024*1024,
// backupCount=5). Returns the *RotatingFile so the caller can Close it on
// shutdown.
func NewWithFile(level, format, logFilePath string) (zerolog.Logger, *RotatingFile, error) {
	rf, err := NewRotatingFile(logFilePath, 10*1024*1024, 5)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}
	return newLogger(level, format, io.MultiWriter(os.Stdout, rf)), rf, nil
}

func newLogger(level, format string, base io.Writer) zerolog.Logger {
	w := base
	if strings.EqualFold(format, "text") {
		w = zerolog.ConsoleWriter{Out: base, TimeFormat: time.RFC3339}
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(w).With().Timestamp().Logger()
	logger = logger.Level(parseLevel(level))
	return logger
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// For builds a child logger tagged with a component name, e.g.
// logging.For(root, "buffer").
func For(root zerolog.Logger, component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}

// CameraEvent logs a per-camera event, mirroring log_camera_event.
func CameraEvent(l zerolog.Logger, cameraID, event, message string, fields map[string]interface{}) {
	evt := l.Info()
	if fields != nil {
		evt = l.Info().Fields(fields)
	}
	evt.Str("camera_id", cameraID).Str("event", event).Msg(message)
}

// CameraWarn is CameraEvent at warning level.
func CameraWarn(l zerolog.Logger, cameraID, event, message string, fields map[string]interface{}) {
	evt := l.Warn()
	if fields != nil {
		evt = evt.Fields(fields)
	}
	evt.Str("camera_id", cameraID).Str("event", event).Msg(message)
}

// CameraError is CameraEvent at error level.
func CameraError(l zerolog.Logger, cameraID, event, message string, fields map[string]interface{}) {
	evt := l.Error()
	if fields != nil {
		evt = evt.Fields(fields)
	}
	evt.Str("camera_id", cameraID).Str("event", event).Msg(message)
}

// BufferEvent logs a buffer event, mirroring log_buffer_event.
func BufferEvent(l zerolog.Logger, cameraID, event, message string, fields map[string]interface{}) {
	evt := l.Info()
	if fields != nil {
		evt = evt.Fields(fields)
	}
	evt.Str("camera_id", cameraID).Str("event", event).Msg(message)
}

// SystemEvent logs a system-wide event, mirroring log_system_event.
func SystemEvent(l zerolog.Logger, event, message string, fields map[string]interface{}) {
	evt := l.Info()
	if fields != nil {
		evt = evt.Fields(fields)
	}
	evt.Str("event", event).Msg(message)
}

// SystemWarn is SystemEvent at warning level.
func SystemWarn(l zerolog.Logger, event, message string, fields map[string]interface{}) {
	evt := l.Warn()
	if fields != nil {
		evt = evt.Fields(fields)
	}
	evt.Str("event", event).Msg(message)
}

// SystemCritical is SystemEvent at the highest level the system names in
// its own HealthReport vocabulary.
func SystemCritical(l zerolog.Logger, event, message string, fields map[string]interface{}) {
	evt := l.Error()
	if fields != nil {
		evt = evt.Fields(fields)
	}
	evt.Str("event", event).Str("severity", "critical").Msg(message)
}

// ClipEvent logs a materialised clip, mirroring log_clip_event.
func ClipEvent(l zerolog.Logger, cameraID, clipName string, triggerTime time.Time, duration float64, segments []string) {
	l.Info().
		Str("camera_id", cameraID).
		Str("event", "clip_generated").
		Str("clip", clipName).
		Time("trigger_time", triggerTime).
		Float64("duration_seconds", duration).
		Strs("segments", segments).
		Msg("clip generated")
}

// ReconnectionEvent logs a capture reconnect attempt, mirroring
// log_reconnection_event.
func ReconnectionEvent(l zerolog.Logger, cameraID string, attempt, maxAttempts int, delaySeconds float64) {
	l.Warn().
		Str("camera_id", cameraID).
		Str("event", "reconnect_scheduled").
		Int("attempt", attempt).
		Int("max_attempts", maxAttempts).
		Float64("delay_seconds", delaySeconds).
		Msg("scheduling capture reconnect")
}

// Error logs an error within a named operation, mirroring log_error.
func Error(l zerolog.Logger, operation string, err error, fields map[string]interface{}) {
	evt := l.Error()
	if fields != nil {
		evt = evt.Fields(fields)
	}
	evt.Str("operation", operation).Err(err).Msg("operation failed")
}
