// Package config loads and validates the runtime configuration for ringcam
// from environment variables (optionally pre-loaded from a .env file).
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Camera describes one configured RTSP source.
type Camera struct {
	Index   int    // 0-based
	Name    string // "camera_1", "camera_2", ...
	URL     string
	TempDir string
}

// Config holds every tunable of the system, loaded once at startup.
type Config struct {
	Cameras []Camera

	ChunkDuration     int // seconds
	BufferSeconds     int
	FinalClipDuration int

	RTSPTransport string // tcp | udp

	TempDir  string
	ClipsDir string

	ReconnectInitialDelay int // seconds
	ReconnectMaxDelay     int
	ReconnectMaxAttempts  int // 0 = unlimited

	TriggerMode string // keyboard | http
	HTTPPort    int

	LogLevel  string
	LogFormat string // json | text
	LogFile   string // optional: also tee logs to this rotating file

	FFmpegKeyframeInterval int
	FFmpegPreset           string
	FFmpegCRF              int

	FFmpegPath  string
	FFprobePath string

	ClipRetentionCron string
	ClipMaxAgeDays    int
}

// Load reads config.env (if present) and then the process environment,
// validates the result, and creates the temp/clip directories.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = "config.env"
	}
	// Best-effort: a missing .env file is not an error, mirroring
	// python-dotenv's load_dotenv() which silently no-ops.
	_ = godotenv.Load(envFile)

	c := &Config{}
	c.loadCameras()
	c.loadTunables()

	if err := c.validate(); err != nil {
		return nil, err
	}

	c.resolveTempDir()
	if err := c.setupDirectories(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) loadCameras() {
	for i := 1; ; i++ {
		key := fmt.Sprintf("CAMERA_%d_URL", i)
		url, ok := os.LookupEnv(key)
		if !ok {
			break
		}
		name := fmt.Sprintf("camera_%d", i)
		c.Cameras = append(c.Cameras, Camera{Index: i - 1, Name: name, URL: url})
	}
}

func (c *Config) loadTunables() {
	c.ChunkDuration = envInt("CHUNK_DURATION", 5)
	c.BufferSeconds = envInt("BUFFER_SECONDS", 30)
	c.FinalClipDuration = envInt("FINAL_CLIP_DURATION", 25)

	c.RTSPTransport = envString("RTSP_TRANSPORT", "tcp")

	c.ClipsDir = envString("CLIPS_DIR", "./clips")

	c.ReconnectInitialDelay = envInt("RECONNECT_INITIAL_DELAY", 2)
	c.ReconnectMaxDelay = envInt("RECONNECT_MAX_DELAY", 30)
	c.ReconnectMaxAttempts = envInt("RECONNECT_MAX_ATTEMPTS", 0)

	c.TriggerMode = envString("TRIGGER_MODE", "keyboard")
	c.HTTPPort = envInt("HTTP_PORT", 8080)

	c.LogLevel = envString("LOG_LEVEL", "INFO")
	c.LogFormat = envString("LOG_FORMAT", "json")
	c.LogFile = envString("LOG_FILE", "./logs/system.log")

	c.FFmpegKeyframeInterval = envInt("FFMPEG_KEYFRAME_INTERVAL", 1)
	c.FFmpegPreset = envString("FFMPEG_PRESET", "ultrafast")
	c.FFmpegCRF = envInt("FFMPEG_CRF", 23)

	c.FFmpegPath = envString("FFMPEG_PATH", "")
	c.FFprobePath = envString("FFPROBE_PATH", "")

	c.ClipRetentionCron = envString("CLIP_RETENTION_CRON", "17 3 * * *")
	c.ClipMaxAgeDays = envInt("CLIP_MAX_AGE_DAYS", 30)
}

func (c *Config) validate() error {
	if len(c.Cameras) == 0 {
		return fmt.Errorf("config: no camera configured, set at least CAMERA_1_URL")
	}
	if c.ChunkDuration <= 0 {
		return fmt.Errorf("config: CHUNK_DURATION must be greater than 0")
	}
	if c.BufferSeconds <= 0 {
		return fmt.Errorf("config: BUFFER_SECONDS must be greater than 0")
	}
	if c.FinalClipDuration <= 0 {
		return fmt.Errorf("config: FINAL_CLIP_DURATION must be greater than 0")
	}
	if c.FinalClipDuration > c.BufferSeconds {
		return fmt.Errorf("config: FINAL_CLIP_DURATION cannot exceed BUFFER_SECONDS")
	}
	if c.TriggerMode != "keyboard" && c.TriggerMode != "http" {
		return fmt.Errorf("config: TRIGGER_MODE must be 'keyboard' or 'http'")
	}
	for _, cam := range c.Cameras {
		if !strings.HasPrefix(cam.URL, "rtsp://") {
			return fmt.Errorf("config: %s_URL must start with 'rtsp://'", strings.ToUpper(cam.Name))
		}
	}
	return nil
}

// resolveTempDir mirrors Config._get_temp_directory: prefer an explicit
// TEMP_DIR, else prefer tmpfs (/dev/shm) on Linux, else a platform tempdir.
func (c *Config) resolveTempDir() {
	if v := os.Getenv("TEMP_DIR"); v != "" {
		c.TempDir = v
		return
	}

	switch runtime.GOOS {
	case "linux":
		if _, err := os.Stat("/dev/shm"); err == nil {
			c.TempDir = "/dev/shm/video_buffer"
		} else {
			c.TempDir = "/tmp/video_buffer"
		}
	default:
		c.TempDir = filepath.Join(os.TempDir(), "video_buffer")
	}
}

func (c *Config) setupDirectories() error {
	if err := os.MkdirAll(c.TempDir, 0o755); err != nil {
		return fmt.Errorf("config: creating temp dir: %w", err)
	}
	if err := os.MkdirAll(c.ClipsDir, 0o755); err != nil {
		return fmt.Errorf("config: creating clips dir: %w", err)
	}
	for i := range c.Cameras {
		dir := filepath.Join(c.TempDir, c.Cameras[i].Name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: creating camera temp dir: %w", err)
		}
		c.Cameras[i].TempDir = dir
	}
	return nil
}

// AutoDetectFFmpeg fills FFmpegPath/FFprobePath via PATH lookup when unset,
// the way the teacher's transcoder.Config.AutoDetect does for its own
// ffmpeg/ffprobe fields.
func (c *Config) AutoDetectFFmpeg() error {
	if c.FFmpegPath == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return fmt.Errorf("config: could not find ffmpeg on PATH: %w", err)
		}
		c.FFmpegPath = path
	}
	if c.FFprobePath == "" {
		path, err := exec.LookPath("ffprobe")
		if err != nil {
			return fmt.Errorf("config: could not find ffprobe on PATH: %w", err)
		}
		c.FFprobePath = path
	}
	return nil
}

// BufferChunksCount is how many chunks fit in the rolling window.
func (c *Config) BufferChunksCount() int {
	return c.BufferSeconds / c.ChunkDuration
}

// FinalClipChunksCount is how many chunks a default-duration clip needs.
func (c *Config) FinalClipChunksCount() int {
	return c.FinalClipDuration / c.ChunkDuration
}

// CameraByName looks up a configured camera by its "camera_N" name.
func (c *Config) CameraByName(name string) (Camera, bool) {
	for _, cam := range c.Cameras {
		if cam.Name == name {
			return cam, true
		}
	}
	return Camera{}, false
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
