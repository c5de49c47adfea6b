package stream_test

import (
	"testing"
	"time"

	"github.com/eidaws/federator/internal/stream"
)

func TestFormatParseRoundTrip(t *testing.T) {
	now := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	e := stream.New("NL", "HGN", "", "BHZ", start, now)

	line := e.FormatLine(now)
	const want = "NL HGN -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000"
	if line != want {
		t.Fatalf("FormatLine = %q, want %q", line, want)
	}

	got, err := stream.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if got.Key() != e.Key() {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestParseLineLocationDashes(t *testing.T) {
	e, err := stream.ParseLine("NL HGN -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if e.Location != "" {
		t.Fatalf("Location = %q, want empty", e.Location)
	}
}

func TestParseLineBadSelector(t *testing.T) {
	if _, err := stream.ParseLine("NL HGN BHZ"); err == nil {
		t.Fatal("expected BadSelector error for short line")
	}
	if _, err := stream.ParseLine("NL HGN -- BHZ notatime 2020-01-02T00:00:00.000"); err == nil {
		t.Fatal("expected BadSelector error for bad start time")
	}
}

func TestNetworkStationKey(t *testing.T) {
	e := stream.New("GE", "WLF", "00", "BHZ", time.Time{}, time.Time{})
	if got := e.NetworkStationKey(); got != "GE.WLF" {
		t.Fatalf("NetworkStationKey = %q, want GE.WLF", got)
	}
}
