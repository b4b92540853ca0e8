package orchestrator

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/ringcam/ringcam/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CAMERA_1_URL", "rtsp://example.invalid/stream")
	t.Setenv("TEMP_DIR", dir+"/temp")
	t.Setenv("CLIPS_DIR", dir+"/clips")
	t.Setenv("TRIGGER_MODE", "http")
	t.Setenv("HTTP_PORT", "0")

	cfg, err := config.Load(dir + "/missing.env")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestNewBuildsOneSubsystemTriplePerCamera(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)

	sys := New(cfg, log)

	if len(sys.cameras) != 1 {
		t.Fatalf("expected 1 camera subsystem triple, got %d", len(sys.cameras))
	}
	cam, ok := sys.cameras["camera_1"]
	if !ok {
		t.Fatal("expected camera_1 to be registered")
	}
	if cam.supervisor == nil || cam.watcher == nil || cam.buf == nil {
		t.Fatal("expected capture/watcher/buffer all wired for camera_1")
	}
	if sys.http == nil {
		t.Fatal("expected http trigger to be built in http mode")
	}
	if sys.keyboard == nil {
		t.Fatal("expected keyboard trigger to also run alongside http mode")
	}
}

func TestStatusSnapshotIncludesCamerasAndClipStats(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	sys := New(cfg, log)

	snapshot := sys.StatusSnapshot()

	if _, ok := snapshot["cameras"]; !ok {
		t.Fatal("expected cameras key in status snapshot")
	}
	if _, ok := snapshot["clips"]; !ok {
		t.Fatal("expected clips key in status snapshot")
	}
	if _, ok := snapshot["health"]; !ok {
		t.Fatal("expected health key in status snapshot")
	}
}
