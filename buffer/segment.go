// Package buffer implements the per-camera rolling window of captured
// video segments (the "circular buffer" of the capture pipeline).
package buffer

import (
	"path/filepath"
	"time"
)

// Segment is one captured chunk of video sitting in the scratch directory.
type Segment struct {
	CameraID        string
	Filename        string
	Path            string
	WallTime        time.Time
	NominalDuration time.Duration
	SizeBytes       int64
}

// Age is how long ago the segment was captured.
func (s Segment) Age(now time.Time) time.Duration {
	return now.Sub(s.WallTime)
}

// End is the wall-clock time the segment is expected to end at, based on
// its nominal duration.
func (s Segment) End() time.Time {
	return s.WallTime.Add(s.NominalDuration)
}

// NewSegment builds a Segment from a scratch-dir path and a nominal
// per-chunk duration; WallTime defaults to now (the moment it is observed).
func NewSegment(cameraID, path string, sizeBytes int64, nominalDuration time.Duration) Segment {
	return Segment{
		CameraID:        cameraID,
		Filename:        filepath.Base(path),
		Path:            path,
		WallTime:        time.Now(),
		NominalDuration: nominalDuration,
		SizeBytes:       sizeBytes,
	}
}
