package trigger

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/ringcam/ringcam/logging"
)

// Keyboard reads lines from stdin: "s" enqueues a save-all trigger,
// "q"/"quit"/"exit" requests shutdown via Quit.
type Keyboard struct {
	queue           *Queue
	log             zerolog.Logger
	defaultDuration time.Duration

	Quit chan struct{}

	stop chan struct{}
	done chan struct{}
}

// NewKeyboard builds a keyboard trigger front-end.
func NewKeyboard(queue *Queue, defaultDuration time.Duration, log zerolog.Logger) *Keyboard {
	return &Keyboard{
		queue:           queue,
		log:             log,
		defaultDuration: defaultDuration,
		Quit:            make(chan struct{}),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start prints operator instructions and begins reading stdin lines in a
// goroutine.
func (k *Keyboard) Start() {
	bold := color.New(color.Bold)
	bold.Println("\n============================================================")
	bold.Println("RINGCAM VIDEO CAPTURE SYSTEM RUNNING")
	bold.Println("============================================================")
	color.Cyan("Press 's' + ENTER to save a clip")
	color.Cyan("Press 'q' + ENTER to quit")
	bold.Println("============================================================\n")

	logging.SystemEvent(k.log, "keyboard_trigger_started", "keyboard trigger started", nil)

	go k.run()
}

func (k *Keyboard) run() {
	defer close(k.done)

	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-k.stop:
				return
			}
		}
		close(lines)
	}()

	for {
		select {
		case <-k.stop:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			k.handleLine(strings.ToLower(strings.TrimSpace(line)))
		}
	}
}

func (k *Keyboard) handleLine(line string) {
	switch line {
	case "s":
		k.triggerSave()
	case "q", "quit", "exit":
		k.triggerQuit()
	}
}

func (k *Keyboard) triggerSave() {
	now := time.Now()
	logging.SystemEvent(k.log, "manual_trigger", "keyboard trigger fired", map[string]interface{}{
		"trigger_time": now,
	})
	color.Yellow("[%s] saving clip...", now.Format("15:04:05"))

	k.queue.Enqueue(Request{
		Time:     now,
		Source:   "keyboard",
		CameraID: "all",
		Duration: k.defaultDuration,
	})
	color.Green("queued")
}

func (k *Keyboard) triggerQuit() {
	logging.SystemEvent(k.log, "quit_requested", "shutdown requested via keyboard", nil)
	color.Red("shutting down...")
	close(k.Quit)
}

// Stop ends the stdin-reading goroutine.
func (k *Keyboard) Stop() {
	close(k.stop)
	<-k.done
	logging.SystemEvent(k.log, "keyboard_trigger_stopped", "keyboard trigger stopped", nil)
}
