package trigger

import (
	"testing"
	"time"
)

func TestQueuePreservesOrderAndDoesNotCoalesce(t *testing.T) {
	q := NewQueue(8)

	now := time.Now()
	q.Enqueue(Request{Time: now, Source: "keyboard", CameraID: "all"})
	q.Enqueue(Request{Time: now, Source: "keyboard", CameraID: "all"})
	q.Enqueue(Request{Time: now, Source: "http", CameraID: "camera_1"})

	var got []Request
	for i := 0; i < 3; i++ {
		got = append(got, <-q.Requests())
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 independent requests (no coalescing), got %d", len(got))
	}
	if got[2].CameraID != "camera_1" {
		t.Fatalf("expected FIFO order preserved, got %+v", got)
	}
}
