package buffer

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ringcam/ringcam/logging"
)

// CircularBuffer keeps the rolling window of segments for a single camera.
// Oldest-first ordering is maintained by construction: Add always appends,
// Evict always pops from the front.
type CircularBuffer struct {
	mu sync.Mutex

	cameraID      string
	maxDuration   time.Duration
	chunkDuration time.Duration
	log           zerolog.Logger

	segments []Segment

	frozen   bool
	snapshot []Segment // copy taken at freeze() time, served while frozen

	totalCreated int
	totalRemoved int
	totalBytes   int64
}

// NewCircularBuffer builds an empty buffer for one camera.
func NewCircularBuffer(cameraID string, maxDuration, chunkDuration time.Duration, log zerolog.Logger) *CircularBuffer {
	return &CircularBuffer{
		cameraID:      cameraID,
		maxDuration:   maxDuration,
		chunkDuration: chunkDuration,
		log:           log,
	}
}

// Add appends a newly-arrived segment and evicts anything now outside the
// rolling window, unless the buffer is frozen for a clip materialisation.
func (b *CircularBuffer) Add(seg Segment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.segments = append(b.segments, seg)
	b.totalCreated++
	b.totalBytes += seg.SizeBytes

	logging.BufferEvent(b.log, b.cameraID, "segment_created", seg.Filename, map[string]interface{}{
		"size_bytes":  seg.SizeBytes,
		"buffer_size": len(b.segments),
	})

	b.evictLocked()
}

// evictLocked drops the oldest segments until the buffer is back within
// maxDuration. No-op while frozen: eviction is deferred until Unfreeze.
func (b *CircularBuffer) evictLocked() {
	if b.frozen {
		return
	}
	for len(b.segments) > 0 {
		total := time.Duration(len(b.segments)) * b.chunkDuration
		if total <= b.maxDuration {
			break
		}
		old := b.segments[0]
		b.segments = b.segments[1:]
		b.totalRemoved++

		if err := os.Remove(old.Path); err != nil && !os.IsNotExist(err) {
			logging.Error(b.log, "buffer_evict", err, map[string]interface{}{
				"camera_id": b.cameraID,
				"filename":  old.Filename,
			})
			continue
		}
		logging.BufferEvent(b.log, b.cameraID, "segment_removed", old.Filename, map[string]interface{}{
			"age_seconds": old.Age(time.Now()).Seconds(),
			"size_bytes":  old.SizeBytes,
			"buffer_size": len(b.segments),
		})
	}
}

// activeLocked returns the segment list a reader should see: the frozen
// snapshot while a clip is being materialised, the live list otherwise.
func (b *CircularBuffer) activeLocked() []Segment {
	if b.frozen {
		return b.snapshot
	}
	return b.segments
}

// Recent returns up to duration's worth of the newest segments.
func (b *CircularBuffer) Recent(duration time.Duration) []Segment {
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.activeLocked()
	if len(src) == 0 {
		return nil
	}

	chunksNeeded := int(duration / b.chunkDuration)
	if chunksNeeded < 1 {
		chunksNeeded = 1
	}
	if chunksNeeded >= len(src) {
		out := make([]Segment, len(src))
		copy(out, src)
		return out
	}
	out := make([]Segment, chunksNeeded)
	copy(out, src[len(src)-chunksNeeded:])
	return out
}

// Range returns segments overlapping [start, end].
func (b *CircularBuffer) Range(start, end time.Time) []Segment {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Segment
	for _, seg := range b.activeLocked() {
		if !seg.WallTime.After(end) && !seg.End().Before(start) {
			out = append(out, seg)
		}
	}
	return out
}

// Freeze takes a snapshot of the current segment list and suspends
// eviction, so a clip materialisation sees a stable view even if new
// segments keep arriving (or old ones would otherwise be evicted)
// concurrently.
func (b *CircularBuffer) Freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frozen = true
	b.snapshot = make([]Segment, len(b.segments))
	copy(b.snapshot, b.segments)

	logging.BufferEvent(b.log, b.cameraID, "buffer_frozen", "", map[string]interface{}{
		"frozen_segments_count": len(b.snapshot),
	})
}

// Unfreeze releases the snapshot and runs any eviction that was deferred
// while frozen. Always safe to call, including after a failed
// materialisation (callers should defer it).
func (b *CircularBuffer) Unfreeze() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frozen = false
	b.snapshot = nil
	b.evictLocked()

	logging.BufferEvent(b.log, b.cameraID, "buffer_unfrozen", "", nil)
}

// EmergencyEvict drops the oldest half of the segments regardless of the
// frozen flag, for use by the resilience monitor under memory pressure.
// Emergency eviction always wins over an in-flight freeze.
func (b *CircularBuffer) EmergencyEvict() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	toRemove := len(b.segments) / 2
	removed := 0
	for i := 0; i < toRemove && len(b.segments) > 0; i++ {
		old := b.segments[0]
		b.segments = b.segments[1:]
		if err := os.Remove(old.Path); err == nil || os.IsNotExist(err) {
			removed++
			b.totalRemoved++
		}
	}
	return removed
}

// Clear removes every segment from disk and empties the buffer.
func (b *CircularBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, seg := range b.segments {
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			logging.Error(b.log, "buffer_clear", err, map[string]interface{}{
				"camera_id": b.cameraID,
				"filename":  seg.Filename,
			})
		}
	}
	b.segments = nil
	logging.BufferEvent(b.log, b.cameraID, "buffer_cleared", "all_segments_removed", nil)
}

// Info is the read-only snapshot exposed over the status endpoint.
type Info struct {
	CameraID            string
	SegmentsCount       int
	TotalDurationSec    float64
	TotalSizeBytes      int64
	MaxDurationSec      float64
	ChunkDurationSec    float64
	OldestSegment       string
	NewestSegment       string
	BufferUsagePercent  float64
	TotalCreated        int
	TotalRemoved        int
	TotalBytesProcessed int64
}

// Info returns the current state of the buffer.
func (b *CircularBuffer) Info() Info {
	b.mu.Lock()
	defer b.mu.Unlock()

	info := Info{
		CameraID:            b.cameraID,
		SegmentsCount:       len(b.segments),
		MaxDurationSec:      b.maxDuration.Seconds(),
		ChunkDurationSec:    b.chunkDuration.Seconds(),
		TotalCreated:        b.totalCreated,
		TotalRemoved:        b.totalRemoved,
		TotalBytesProcessed: b.totalBytes,
	}
	if len(b.segments) > 0 {
		info.OldestSegment = b.segments[0].Filename
		info.NewestSegment = b.segments[len(b.segments)-1].Filename
		info.TotalDurationSec = float64(len(b.segments)) * b.chunkDuration.Seconds()
		for _, s := range b.segments {
			info.TotalSizeBytes += s.SizeBytes
		}
	}
	if b.maxDuration > 0 {
		info.BufferUsagePercent = info.TotalDurationSec / info.MaxDurationSec * 100
	}
	return info
}

// Manager owns one CircularBuffer per camera.
type Manager struct {
	mu      sync.RWMutex
	buffers map[string]*CircularBuffer
}

// NewManager builds an empty Manager; buffers are added via Add.
func NewManager() *Manager {
	return &Manager{buffers: make(map[string]*CircularBuffer)}
}

// Add registers a buffer for a camera.
func (m *Manager) Add(cameraID string, b *CircularBuffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffers[cameraID] = b
}

// Get returns the buffer for a camera, if any.
func (m *Manager) Get(cameraID string) (*CircularBuffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buffers[cameraID]
	return b, ok
}

// All returns every registered buffer, keyed by camera ID.
func (m *Manager) All() map[string]*CircularBuffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*CircularBuffer, len(m.buffers))
	for k, v := range m.buffers {
		out[k] = v
	}
	return out
}

// ClearAll empties every buffer.
func (m *Manager) ClearAll() {
	for _, b := range m.All() {
		b.Clear()
	}
}
