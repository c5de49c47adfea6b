// Package route implements the routing table and its transforms:
// demultiplexing, grouping, and the station "level" reduction. All
// transforms preserve source order and return new structures.
package route

import (
	"strings"

	"github.com/eidaws/federator/internal/ferr"
	"github.com/eidaws/federator/internal/stream"
)

// Route binds one endpoint URL to an ordered list of stream epochs for
// which that endpoint holds data. A demultiplexed route
// carries exactly one epoch.
type Route struct {
	URL    string
	Epochs []stream.Epoch
}

func (r Route) Demuxed() bool { return len(r.Epochs) == 1 }

// Table is an ordered list of routes, produced by the routing client and
// never mutated after construction except by Demux/GroupBy/Reduce, which
// each return a new structure.
type Table []Route

// Demux expands each multi-epoch route into one route per epoch,
// preserving source order.
func (t Table) Demux() Table {
	out := make(Table, 0, len(t))
	for _, r := range t {
		for _, e := range r.Epochs {
			out = append(out, Route{URL: r.URL, Epochs: []stream.Epoch{e}})
		}
	}
	return out
}

// Key identifies the grouping dimension for GroupBy: a plain field, or a
// dot-joined compound like "network.station".
type Key string

const (
	KeyNetwork        Key = "network"
	KeyStation        Key = "station"
	KeyLocation       Key = "location"
	KeyChannel        Key = "channel"
	KeyNetworkStation Key = "network.station"
)

func (k Key) valueOf(e stream.Epoch) (string, error) {
	parts := strings.Split(string(k), ".")
	vals := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "network":
			vals = append(vals, e.Network)
		case "station":
			vals = append(vals, e.Station)
		case "location":
			vals = append(vals, e.Location)
		case "channel":
			vals = append(vals, e.Channel)
		default:
			return "", &ferr.BadGroupKey{Key: string(k)}
		}
	}
	return strings.Join(vals, "."), nil
}

// Grouped is an ordered mapping from key value to the (in-source-order)
// list of demultiplexed routes sharing that value; Order preserves first-
// seen bucket order so iteration is deterministic.
type Grouped struct {
	Order  []string
	Bucket map[string]Table
}

func newGrouped() *Grouped { return &Grouped{Bucket: make(map[string]Table)} }

func (g *Grouped) add(key string, r Route) {
	if _, ok := g.Bucket[key]; !ok {
		g.Order = append(g.Order, key)
	}
	g.Bucket[key] = append(g.Bucket[key], r)
}

// GroupBy groups demultiplexed routes by key, preserving the order of the
// input table within each bucket. t must
// already be demultiplexed (one epoch per route); call Demux first.
func GroupBy(t Table, key Key) (*Grouped, error) {
	g := newGrouped()
	for _, r := range t {
		if len(r.Epochs) != 1 {
			return nil, &ferr.BadGroupKey{Key: string(key) + " (route not demultiplexed)"}
		}
		v, err := key.valueOf(r.Epochs[0])
		if err != nil {
			return nil, err
		}
		g.add(v, r)
	}
	return g, nil
}

// Flatten concatenates all buckets back into one table, in bucket-first-
// seen order.
func (g *Grouped) Flatten() Table {
	out := make(Table, 0)
	for _, k := range g.Order {
		out = append(out, g.Bucket[k]...)
	}
	return out
}
