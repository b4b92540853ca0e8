package buffer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func writeSegmentFile(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("fake mp4 data"), 0o644); err != nil {
		t.Fatalf("writing fixture segment: %v", err)
	}
	return p
}

func TestCircularBufferEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	b := NewCircularBuffer("camera_1", 3*time.Second, time.Second, testLogger())

	for i := 0; i < 5; i++ {
		name := filepath.Base(dir) + "_seg" + string(rune('a'+i)) + ".mp4"
		p := writeSegmentFile(t, dir, name)
		b.Add(NewSegment("camera_1", p, 2048, time.Second))
	}

	info := b.Info()
	if info.SegmentsCount != 3 {
		t.Fatalf("expected 3 segments retained, got %d", info.SegmentsCount)
	}
	if info.TotalRemoved != 2 {
		t.Fatalf("expected 2 segments evicted, got %d", info.TotalRemoved)
	}
}

func TestFreezeDefersEviction(t *testing.T) {
	dir := t.TempDir()
	b := NewCircularBuffer("camera_1", 2*time.Second, time.Second, testLogger())

	p1 := writeSegmentFile(t, dir, "seg1.mp4")
	b.Add(NewSegment("camera_1", p1, 1024, time.Second))
	b.Freeze()

	p2 := writeSegmentFile(t, dir, "seg2.mp4")
	b.Add(NewSegment("camera_1", p2, 1024, time.Second))
	p3 := writeSegmentFile(t, dir, "seg3.mp4")
	b.Add(NewSegment("camera_1", p3, 1024, time.Second))

	// Frozen snapshot only ever had seg1 at freeze time.
	recent := b.Recent(10 * time.Second)
	if len(recent) != 1 || recent[0].Filename != "seg1.mp4" {
		t.Fatalf("expected frozen snapshot of 1 segment, got %+v", recent)
	}

	b.Unfreeze()
	info := b.Info()
	if info.SegmentsCount != 2 {
		t.Fatalf("expected deferred eviction to leave 2 segments, got %d", info.SegmentsCount)
	}
}

func TestEmergencyEvictIgnoresFreeze(t *testing.T) {
	dir := t.TempDir()
	b := NewCircularBuffer("camera_1", 100*time.Second, time.Second, testLogger())

	for i := 0; i < 4; i++ {
		p := writeSegmentFile(t, dir, "seg"+string(rune('a'+i))+".mp4")
		b.Add(NewSegment("camera_1", p, 1024, time.Second))
	}
	b.Freeze()

	removed := b.EmergencyEvict()
	if removed != 2 {
		t.Fatalf("expected emergency evict to drop half (2), got %d", removed)
	}
}

func TestRangeOverlap(t *testing.T) {
	dir := t.TempDir()
	b := NewCircularBuffer("camera_1", 100*time.Second, time.Second, testLogger())

	base := time.Now().Add(-10 * time.Second)
	for i := 0; i < 5; i++ {
		p := writeSegmentFile(t, dir, "seg"+string(rune('a'+i))+".mp4")
		seg := NewSegment("camera_1", p, 1024, time.Second)
		seg.WallTime = base.Add(time.Duration(i) * time.Second)
		b.Add(seg)
	}

	got := b.Range(base.Add(1*time.Second), base.Add(3*time.Second))
	if len(got) == 0 {
		t.Fatal("expected overlapping segments in range")
	}
}
