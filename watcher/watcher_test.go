package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherSkipsUndersizedFiles(t *testing.T) {
	dir := t.TempDir()
	w := New("camera_1", dir, zerolog.Nop())

	go w.Run()
	defer w.Stop()

	small := filepath.Join(dir, "camera_1_small.mp4")
	if err := os.WriteFile(small, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case a := <-w.Arrivals:
		t.Fatalf("did not expect an arrival for an undersized file, got %+v", a)
	case <-time.After(2 * time.Second):
	}
}

func TestWatcherEmitsPlausibleSegment(t *testing.T) {
	dir := t.TempDir()
	w := New("camera_1", dir, zerolog.Nop())

	go w.Run()
	defer w.Stop()

	payload := make([]byte, 4096)
	p := filepath.Join(dir, "camera_1_20260101_000000.mp4")
	if err := os.WriteFile(p, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case a := <-w.Arrivals:
		if a.CameraID != "camera_1" {
			t.Fatalf("unexpected camera id: %s", a.CameraID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("expected a segment arrival within 3s")
	}
}
