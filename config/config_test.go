package config

import (
	"testing"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func TestLoadValidatesMissingCamera(t *testing.T) {
	_, err := Load("does-not-exist.env")
	if err == nil {
		t.Fatal("expected error when no camera is configured")
	}
}

func TestLoadRejectsNonRTSPURL(t *testing.T) {
	withEnv(t, map[string]string{
		"CAMERA_1_URL": "http://example.com/stream",
	}, func() {
		_, err := Load("does-not-exist.env")
		if err == nil {
			t.Fatal("expected error for non-rtsp:// camera URL")
		}
	})
}

func TestLoadRejectsClipLongerThanBuffer(t *testing.T) {
	tmp := t.TempDir()
	withEnv(t, map[string]string{
		"CAMERA_1_URL":        "rtsp://cam.local/stream",
		"BUFFER_SECONDS":      "10",
		"FINAL_CLIP_DURATION": "20",
		"TEMP_DIR":            tmp,
		"CLIPS_DIR":           tmp,
	}, func() {
		_, err := Load("does-not-exist.env")
		if err == nil {
			t.Fatal("expected error when FINAL_CLIP_DURATION exceeds BUFFER_SECONDS")
		}
	})
}

func TestLoadRejectsBadTriggerMode(t *testing.T) {
	tmp := t.TempDir()
	withEnv(t, map[string]string{
		"CAMERA_1_URL": "rtsp://cam.local/stream",
		"TRIGGER_MODE": "carrier-pigeon",
		"TEMP_DIR":     tmp,
		"CLIPS_DIR":    tmp,
	}, func() {
		_, err := Load("does-not-exist.env")
		if err == nil {
			t.Fatal("expected error for invalid TRIGGER_MODE")
		}
	})
}

func TestLoadHappyPath(t *testing.T) {
	tmp := t.TempDir()
	withEnv(t, map[string]string{
		"CAMERA_1_URL":   "rtsp://cam1.local/stream",
		"CAMERA_2_URL":   "rtsp://cam2.local/stream",
		"CHUNK_DURATION": "5",
		"BUFFER_SECONDS": "30",
		"TEMP_DIR":       tmp,
		"CLIPS_DIR":      tmp,
	}, func() {
		c, err := Load("does-not-exist.env")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(c.Cameras) != 2 {
			t.Fatalf("expected 2 cameras, got %d", len(c.Cameras))
		}
		if c.BufferChunksCount() != 6 {
			t.Fatalf("expected 6 buffer chunks, got %d", c.BufferChunksCount())
		}
		if _, ok := c.CameraByName("camera_2"); !ok {
			t.Fatal("expected camera_2 to be resolvable by name")
		}
	})
}
