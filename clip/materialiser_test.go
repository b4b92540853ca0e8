package clip

import (
	"testing"
	"time"

	"github.com/ringcam/ringcam/buffer"
)

func TestCanUseFastModeRequiresBoundaryAndAlignment(t *testing.T) {
	chunk := 5 * time.Second

	aligned := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC) // :10 is a 5s boundary
	if !canUseFastMode(aligned, 25*time.Second, chunk) {
		t.Fatal("expected fast mode for boundary-aligned trigger with aligned duration")
	}

	offBoundary := time.Date(2026, 1, 1, 12, 0, 12, 0, time.UTC)
	if canUseFastMode(offBoundary, 25*time.Second, chunk) {
		t.Fatal("did not expect fast mode far from a chunk boundary")
	}

	unalignedDuration := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	if canUseFastMode(unalignedDuration, 23*time.Second, chunk) {
		t.Fatal("did not expect fast mode with duration not a multiple of chunk size")
	}
}

func TestClipFilenameFormat(t *testing.T) {
	tt := time.Date(2026, 7, 30, 14, 5, 9, 0, time.UTC)
	got := clipFilename("camera_1", tt)
	want := "camera_1_clip_20260730_140509Z.mp4"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTailClampsToAvailable(t *testing.T) {
	segs := make([]buffer.Segment, 3)
	for i := range segs {
		segs[i] = buffer.Segment{Filename: string(rune('a' + i))}
	}

	got := tail(segs, 10)
	if len(got) != 3 {
		t.Fatalf("expected all 3 segments when n exceeds length, got %d", len(got))
	}

	got = tail(segs, 2)
	if len(got) != 2 || got[0].Filename != "b" {
		t.Fatalf("expected last 2 segments, got %+v", got)
	}
}
