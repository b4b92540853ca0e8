package monitor

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestCheckerRecordsTransitionAndInvokesOnChange(t *testing.T) {
	reports := []Report{
		{Component: "x", Status: Healthy},
		{Component: "x", Status: Warning},
		{Component: "x", Status: Warning},
		{Component: "x", Status: Critical},
	}
	idx := 0
	next := func() Report {
		r := reports[idx]
		if idx < len(reports)-1 {
			idx++
		}
		return r
	}

	var changes []Status
	c := NewChecker("x", time.Millisecond, next, func(old, new Status, r Report) {
		changes = append(changes, new)
	}, testLogger())

	for i := 0; i < len(reports); i++ {
		c.runOnce()
	}

	if len(changes) != 2 {
		t.Fatalf("expected 2 status changes (healthy->warning, warning->critical), got %d: %+v", len(changes), changes)
	}
	if changes[0] != Warning || changes[1] != Critical {
		t.Fatalf("unexpected change sequence: %+v", changes)
	}

	summary := c.Summary()
	if summary.Status != "critical" {
		t.Fatalf("expected final status critical, got %s", summary.Status)
	}
	if summary.WarnCount != 2 {
		t.Fatalf("expected 2 warn observations counted, got %d", summary.WarnCount)
	}
}

func TestCheckerHistoryIsBounded(t *testing.T) {
	toggle := Healthy
	check := func() Report {
		if toggle == Healthy {
			toggle = Warning
		} else {
			toggle = Healthy
		}
		return Report{Component: "y", Status: toggle}
	}

	c := NewChecker("y", time.Millisecond, check, nil, testLogger())
	for i := 0; i < maxHistoryEntries+10; i++ {
		c.runOnce()
	}

	history := c.History()
	if len(history) != maxHistoryEntries {
		t.Fatalf("expected history bounded at %d, got %d", maxHistoryEntries, len(history))
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		Healthy:    "healthy",
		Warning:    "warning",
		Critical:   "critical",
		Failed:     "failed",
		Recovering: "recovering",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Fatalf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}
