package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/eidaws/federator/internal/cos"
	"github.com/eidaws/federator/internal/download"
	"github.com/eidaws/federator/internal/limiter"
	"github.com/eidaws/federator/internal/route"
	"github.com/eidaws/federator/internal/routing"
	"github.com/eidaws/federator/internal/stationxml"
	"github.com/eidaws/federator/internal/stream"
	"github.com/eidaws/federator/internal/transport"
)

const chunkSize = 64 * 1024

// Station-text headers are the literal FDSN station-text column headers
// for each recognised level.
var stationTextHeaders = map[route.Level]string{
	route.LevelNetwork: "#Network|Description|StartTime|EndTime|TotalStations\n",
	route.LevelStation: "#Network|Station|Latitude|Longitude|Elevation|SiteName|StartTime|EndTime\n",
	route.LevelChannel: "#Network|Station|Location|Channel|Latitude|Longitude|Elevation|Depth|Azimuth|Dip|SensorDescription|Scale|ScaleFreq|ScaleUnits|SampleRate|StartTime|EndTime\n",
}

func stationTextHeader(level route.Level) []byte {
	h, ok := stationTextHeaders[level]
	if !ok {
		h = stationTextHeaders[route.LevelNetwork]
	}
	return []byte(h)
}

func stationXMLHeader(now time.Time) []byte {
	return []byte(fmt.Sprintf(
		`<?xml version="1.0" encoding="UTF-8"?><FDSNStationXML xmlns="http://www.fdsn.org/xml/station/1" schemaVersion="1.0"><Source>EIDA</Source><Created>%s</Created>`,
		now.UTC().Format("2006-01-02T15:04:05.000"),
	))
}

// Deps bundles the collaborators every variant needs to turn a routing
// table into submissions: the egress transport and temp directory used
// by each download child, its retry policy, and the
// process-wide concurrency limiter each child acquires a slot from before
// issuing its request.
type Deps struct {
	Transport  *transport.Client
	Pool       *limiter.Pool
	TmpDir     string
	NumRetries int
	RetryWait  time.Duration
}

// runAcquiredDownload acquires a slot for r.URL, runs one download task,
// and releases the slot regardless of outcome.
func runAcquiredDownload(ctx context.Context, d *Deps, r route.Route, queryParams map[string]string) (download.Result, error) {
	slot, err := d.Pool.Acquire(ctx, r.URL)
	if err != nil {
		return download.Result{}, err
	}
	defer slot.Release()

	task := download.NewTask(d.Transport, d.TmpDir, queryParams, d.NumRetries, d.RetryWait)
	return task.Run(ctx, r)
}

// runDownloadChild adapts a plain per-route download into an Outcome for
// the dataselect/station-text/wfcatalog variants.
func runDownloadChild(ctx context.Context, d *Deps, r route.Route, queryParams map[string]string) (Outcome, error) {
	res, err := runAcquiredDownload(ctx, d, r, queryParams)
	return Outcome{
		StatusCode: res.StatusCode,
		Length:     res.Length,
		Label:      r.URL,
		Open: func() (io.ReadCloser, error) {
			if res.PayloadRef == "" {
				return nil, nil
			}
			return os.Open(res.PayloadRef)
		},
		Cleanup: func() { cos.RemoveTmpFile(res.PayloadRef) },
	}, err
}

func openBytes(buf []byte) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		if buf == nil {
			return nil, nil
		}
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
}

// RunDataselect handles the raw (dataselect) variant: demuxed routes, one
// download per route, concatenated bytes body.
func RunDataselect(ctx context.Context, w io.Writer, d *Deps, rc *routing.Client, queryParams map[string]string, epochs []stream.Epoch, poolSize int, streamingTimeout time.Duration) error {
	table, err := rc.Route(ctx, queryParams, epochs)
	if err != nil {
		return err
	}
	demuxed := table.Demux()

	submissions := make([]func(context.Context) (Outcome, error), len(demuxed))
	for i, r := range demuxed {
		r := r
		submissions[i] = func(ctx context.Context) (Outcome, error) {
			return runDownloadChild(ctx, d, r, queryParams)
		}
	}
	v := Variant{Name: "dataselect", ChunkSize: chunkSize}
	return Run(ctx, w, v, submissions, poolSize, streamingTimeout)
}

// RunWfcatalog handles the wfcatalog variant: demuxed routes, JSON-array
// envelope, comma-separated bodies with each task's own brackets stripped.
func RunWfcatalog(ctx context.Context, w io.Writer, d *Deps, rc *routing.Client, queryParams map[string]string, epochs []stream.Epoch, poolSize int, streamingTimeout time.Duration) error {
	table, err := rc.Route(ctx, queryParams, epochs)
	if err != nil {
		return err
	}
	demuxed := table.Demux()

	submissions := make([]func(context.Context) (Outcome, error), len(demuxed))
	for i, r := range demuxed {
		r := r
		submissions[i] = func(ctx context.Context) (Outcome, error) {
			return runDownloadChild(ctx, d, r, queryParams)
		}
	}
	v := Variant{Name: "wfcatalog", ChunkSize: chunkSize, Header: []byte("["), Footer: []byte("]"), Separator: []byte(","), StripBrackets: true}
	return Run(ctx, w, v, submissions, poolSize, streamingTimeout)
}

// RunStationText handles the station-text variant: routes flattened after
// the level reduction, one download per route, line-oriented body.
func RunStationText(ctx context.Context, w io.Writer, d *Deps, rc *routing.Client, queryParams map[string]string, epochs []stream.Epoch, level route.Level, poolSize int, streamingTimeout time.Duration) error {
	table, err := rc.Route(ctx, queryParams, epochs)
	if err != nil {
		return err
	}
	demuxed := table.Demux()
	grouped, err := route.Reduce(demuxed, level)
	if err != nil {
		return err
	}
	flattened := grouped.Flatten()

	submissions := make([]func(context.Context) (Outcome, error), len(flattened))
	for i, r := range flattened {
		r := r
		submissions[i] = func(ctx context.Context) (Outcome, error) {
			return runDownloadChild(ctx, d, r, queryParams)
		}
	}
	v := Variant{Name: "station-text", ChunkSize: chunkSize, Header: stationTextHeader(level)}
	return Run(ctx, w, v, submissions, poolSize, streamingTimeout)
}

// RunStationXML handles the station-xml variant: routes grouped by
// network after the level reduction, one network-combiner task per
// network.
func RunStationXML(ctx context.Context, w io.Writer, d *Deps, rc *routing.Client, queryParams map[string]string, epochs []stream.Epoch, level route.Level, poolSize, combinerPoolSize int, streamingTimeout time.Duration) error {
	table, err := rc.Route(ctx, queryParams, epochs)
	if err != nil {
		return err
	}
	demuxed := table.Demux()
	grouped, err := route.Reduce(demuxed, level)
	if err != nil {
		return err
	}

	submissions := make([]func(context.Context) (Outcome, error), 0, len(grouped.Order))
	for _, networkCode := range grouped.Order {
		networkCode := networkCode
		routes := grouped.Bucket[networkCode]
		submissions = append(submissions, func(ctx context.Context) (Outcome, error) {
			combiner := stationxml.NewCombiner(func(ctx context.Context, r route.Route) (download.Result, error) {
				return runAcquiredDownload(ctx, d, r, queryParams)
			}, combinerPoolSize)
			res, err := combiner.Combine(ctx, networkCode, routes)
			return Outcome{
				StatusCode: res.StatusCode,
				Length:     res.Length,
				Label:      networkCode,
				Open:       openBytes(res.Payload),
				Cleanup:    func() {},
			}, err
		})
	}
	v := Variant{Name: "station-xml", ChunkSize: chunkSize, Header: stationXMLHeader(time.Now()), Footer: []byte("</FDSNStationXML>")}
	return Run(ctx, w, v, submissions, poolSize, streamingTimeout)
}
