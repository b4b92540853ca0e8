// Package watcher scans a camera's scratch directory for newly-written
// segment files and emits them, in wall-time order, once they look
// plausibly complete.
package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/ringcam/ringcam/logging"
)

const (
	scanInterval     = time.Second
	settleDelay      = 500 * time.Millisecond
	minPlausibleSize = 1000 // bytes
)

// Arrival is a newly-observed, settled segment file.
type Arrival struct {
	CameraID string
	Path     string
	Name     string
	Size     int64
}

// Watcher polls one camera's scratch directory and reports new segments
// through the Arrivals channel in the order it observed them.
type Watcher struct {
	cameraID string
	dir      string
	log      zerolog.Logger

	Arrivals chan Arrival

	stop chan struct{}
	done chan struct{}

	known map[string]bool
}

// New builds a Watcher for one camera's scratch directory. Call Run in a
// goroutine to start scanning.
func New(cameraID, dir string, log zerolog.Logger) *Watcher {
	return &Watcher{
		cameraID: cameraID,
		dir:      dir,
		log:      log,
		Arrivals: make(chan Arrival, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		known:    make(map[string]bool),
	}
}

// Run scans the directory every scanInterval until Stop is called. An
// fsnotify watch on the same directory wakes the scan early when possible;
// the poll loop is still the source of truth for ordering, since fsnotify
// can coalesce or miss rapid renames on some filesystems.
func (w *Watcher) Run() {
	defer close(w.done)

	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()

	wake := make(chan struct{}, 1)
	if fw, err := fsnotify.NewWatcher(); err == nil {
		defer fw.Close()
		if err := fw.Add(w.dir); err == nil {
			go func() {
				for {
					select {
					case _, ok := <-fw.Events:
						if !ok {
							return
						}
						select {
						case wake <- struct{}{}:
						default:
						}
					case <-fw.Errors:
						return
					case <-w.stop:
						return
					}
				}
			}()
		}
	} else {
		logging.Error(w.log, "watcher_fsnotify_init", err, map[string]interface{}{
			"camera_id": w.cameraID,
		})
	}

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.scan()
		case <-wake:
			w.scan()
		}
	}
}

// Stop ends the scan loop and waits for it to return.
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.Error(w.log, "watcher_scan", err, map[string]interface{}{
			"camera_id": w.cameraID,
			"dir":       w.dir,
		})
		return
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if w.known[name] {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return
	}

	// Filename-sorted order within one scan gives a deterministic,
	// wall-time-consistent ordering since segment names embed their
	// capture timestamp.
	sort.Strings(candidates)

	for _, name := range candidates {
		w.known[name] = true
		path := filepath.Join(w.dir, name)

		time.Sleep(settleDelay)

		info, err := os.Stat(path)
		if err != nil {
			// Vanished during settle; not a real arrival.
			continue
		}
		if info.Size() < minPlausibleSize {
			logging.CameraWarn(w.log, w.cameraID, "segment_too_small", name, map[string]interface{}{
				"size_bytes": info.Size(),
			})
			continue
		}

		select {
		case w.Arrivals <- Arrival{CameraID: w.cameraID, Path: path, Name: name, Size: info.Size()}:
		case <-w.stop:
			return
		}
	}
}
