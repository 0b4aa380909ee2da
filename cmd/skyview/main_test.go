package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testOptions() options {
	return options{
		CatalogPath: filepath.Join("..", "..", "core", "testdata", "gps-ops.txt"),
		Latitude:    37.4,
		Longitude:   -122.1,
		Start:       time.Date(2016, time.August, 19, 12, 0, 0, 0, time.UTC),
		Tick:        time.Second,
		Seed:        1,
	}
}

func TestSingleReport(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &out, testOptions()); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "Loaded 24 element sets") {
		t.Fatalf("missing load line:\n%s", text)
	}
	if !strings.Contains(text, "[2016-08-19T12:00:00Z]") || !strings.Contains(text, "PRN") {
		t.Fatalf("missing report:\n%s", text)
	}
}

func TestReplayWalksObserver(t *testing.T) {
	opts := testOptions()
	opts.Duration = 3 * time.Second
	opts.Speed = 1.5

	var out bytes.Buffer
	if err := run(context.Background(), &out, opts); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	for _, stamp := range []string{"12:00:01Z", "12:00:02Z", "12:00:03Z"} {
		if !strings.Contains(text, stamp) {
			t.Fatalf("missing tick %s:\n%s", stamp, text)
		}
	}
	var positions []string
	for _, line := range strings.Split(text, "\n") {
		if i := strings.Index(line, "observer ("); i >= 0 {
			positions = append(positions, line[i:strings.Index(line, ")")+1])
		}
	}
	if len(positions) != 3 || positions[0] == positions[2] {
		t.Fatalf("observer did not move during the replay: %v", positions)
	}
	if !strings.Contains(text, "Replay complete.") {
		t.Fatalf("replay did not finish:\n%s", text)
	}
}

func TestRejectsMissingInputs(t *testing.T) {
	opts := testOptions()
	opts.CatalogPath = ""
	if err := run(context.Background(), &bytes.Buffer{}, opts); err == nil {
		t.Fatalf("expected error without a catalog")
	}

	opts = testOptions()
	opts.Latitude = 0
	if err := run(context.Background(), &bytes.Buffer{}, opts); err == nil {
		t.Fatalf("expected error for an unset position")
	}
}
