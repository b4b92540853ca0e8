package trigger

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ringcam/ringcam/logging"
)

// StatusProvider supplies the data the HTTP trigger's /status endpoint
// reports, decoupling the router from the orchestrator's concrete types.
type StatusProvider interface {
	StatusSnapshot() map[string]interface{}
}

// HTTP is the chi-routed POST /save-clip, GET /status, GET /health
// front-end, mirroring HTTPTrigger's Flask route table.
type HTTP struct {
	queue           *Queue
	defaultDuration time.Duration
	status          StatusProvider
	log             zerolog.Logger
	addr            string

	server *http.Server
}

// NewHTTP builds the HTTP trigger front-end.
func NewHTTP(queue *Queue, defaultDuration time.Duration, status StatusProvider, addr string, log zerolog.Logger) *HTTP {
	return &HTTP{
		queue:           queue,
		defaultDuration: defaultDuration,
		status:          status,
		addr:            addr,
		log:             log,
	}
}

type saveClipRequest struct {
	CameraID string  `json:"camera_id"`
	Duration float64 `json:"duration"`
}

func (h *HTTP) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/save-clip", h.handleSaveClip)
	r.Get("/status", h.handleStatus)
	r.Get("/health", h.handleHealth)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": "endpoint not found",
			"available_endpoints": []string{
				"POST /save-clip - save a video clip",
				"GET /status - system status",
				"GET /health - health check",
			},
		})
	})

	return r
}

func (h *HTTP) handleSaveClip(w http.ResponseWriter, req *http.Request) {
	now := time.Now()

	var body saveClipRequest
	body.CameraID = "all"
	body.Duration = h.defaultDuration.Seconds()
	if req.Body != nil {
		_ = json.NewDecoder(req.Body).Decode(&body)
	}
	if body.CameraID == "" {
		body.CameraID = "all"
	}
	duration := time.Duration(body.Duration * float64(time.Second))
	if duration <= 0 {
		duration = h.defaultDuration
	}

	logging.SystemEvent(h.log, "http_trigger", "http trigger fired", map[string]interface{}{
		"trigger_time": now,
		"camera_id":    body.CameraID,
		"duration":     duration.Seconds(),
		"client_ip":    req.RemoteAddr,
	})

	h.queue.Enqueue(Request{
		Time:     now,
		Source:   "http",
		CameraID: body.CameraID,
		Duration: duration,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      true,
		"message":      "clip queued",
		"trigger_time": now,
		"camera_id":    body.CameraID,
	})
}

func (h *HTTP) handleStatus(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	snapshot := map[string]interface{}{
		"status":    "running",
		"timestamp": time.Now(),
	}
	if h.status != nil {
		for k, v := range h.status.StatusSnapshot() {
			snapshot[k] = v
		}
	}
	json.NewEncoder(w).Encode(snapshot)
}

func (h *HTTP) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// Start begins serving in a goroutine.
func (h *HTTP) Start() {
	h.server = &http.Server{Addr: h.addr, Handler: h.router()}
	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(h.log, "http_trigger_serve", err, nil)
		}
	}()
	logging.SystemEvent(h.log, "http_trigger_started", "http trigger started", map[string]interface{}{
		"addr": h.addr,
	})
}

// Stop gracefully shuts the server down.
func (h *HTTP) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	err := h.server.Shutdown(ctx)
	logging.SystemEvent(h.log, "http_trigger_stopped", "http trigger stopped", nil)
	return err
}
