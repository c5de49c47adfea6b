// Package stream implements the stream-epoch value type: an immutable
// (network, station, location, channel, start, end) tuple, the unit of
// selection for every federated request, with its line-protocol
// parse/format pair.
package stream

import (
	"fmt"
	"strings"
	"time"

	"github.com/eidaws/federator/internal/ferr"
)

const isoLayout = "2006-01-02T15:04:05.000"

// Epoch is an immutable stream-epoch tuple. Zero value is not meaningful;
// construct via ParseLine or New.
type Epoch struct {
	Network  string
	Station  string
	Location string
	Channel  string
	Start    time.Time
	End      time.Time // zero End means "open", formatted/resolved as now()
}

func New(network, station, location, channel string, start, end time.Time) Epoch {
	return Epoch{Network: network, Station: station, Location: location, Channel: channel, Start: start, End: end}
}

// Key is the identity used to compare demultiplexed routes for the
// same-epoch invariant: the full 6-tuple, stringified.
func (e Epoch) Key() string {
	return strings.Join([]string{e.Network, e.Station, e.Location, e.Channel, e.Start.Format(isoLayout), e.formatEnd()}, " ")
}

func (e Epoch) formatEnd() string {
	if e.End.IsZero() {
		return ""
	}
	return e.End.Format(isoLayout)
}

// FormatLine renders the epoch in line protocol: "NET STA LOC CHA START
// END", with an empty location rendered as "--". now is the
// request-scoped "now" substituted for an open End.
func (e Epoch) FormatLine(now time.Time) string {
	loc := e.Location
	if loc == "" {
		loc = "--"
	}
	end := e.End
	if end.IsZero() {
		end = now
	}
	return fmt.Sprintf("%s %s %s %s %s %s",
		e.Network, e.Station, loc, e.Channel,
		e.Start.Format(isoLayout), end.Format(isoLayout))
}

// ParseLine parses one line-protocol stream-epoch line. It is the inverse
// of FormatLine for any epoch produced with a resolved (non-open) End:
// ParseLine(FormatLine(e, now)) == e for every e with e.End == now.
func ParseLine(line string) (Epoch, error) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return Epoch{}, &ferr.BadSelector{Reason: fmt.Sprintf("expected 6 fields, got %d: %q", len(fields), line)}
	}
	net, sta, loc, cha, startS, endS := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]
	if loc == "--" {
		loc = ""
	}
	start, err := parseTime(startS)
	if err != nil {
		return Epoch{}, &ferr.BadSelector{Reason: "bad start time: " + err.Error()}
	}
	end, err := parseTime(endS)
	if err != nil {
		return Epoch{}, &ferr.BadSelector{Reason: "bad end time: " + err.Error()}
	}
	return Epoch{Network: net, Station: sta, Location: loc, Channel: cha, Start: start, End: end}, nil
}

// ParseTime parses one ISO-8601 timestamp using the same layouts as
// ParseLine, exported for callers (the HTTP ingress GET-form parser) that
// build an Epoch from individually named query parameters instead of a
// line-protocol line.
func ParseTime(s string) (time.Time, error) { return parseTime(s) }

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{isoLayout, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized ISO-8601 timestamp %q", s)
}

// NetworkStationKey returns the "network.station" compound value, the
// same string route.KeyNetworkStation groups by.
func (e Epoch) NetworkStationKey() string { return e.Network + "." + e.Station }
