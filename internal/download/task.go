// Package download implements the per-route download task: given one
// route (endpoint URL plus a single stream epoch) it issues a POST to
// the data-centre, spools a 200 body to a temp file, and classifies
// every other outcome. Retriable transport failures and 5xx replies are
// retried; every 4xx, 413 included, is returned at once without retry.
package download

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/eidaws/federator/internal/cos"
	"github.com/eidaws/federator/internal/ferr"
	"github.com/eidaws/federator/internal/metrics"
	"github.com/eidaws/federator/internal/nlog"
	"github.com/eidaws/federator/internal/reqbuilder"
	"github.com/eidaws/federator/internal/route"
	"github.com/eidaws/federator/internal/stream"
	"github.com/eidaws/federator/internal/transport"
)

// Result is the outcome of one download task. PayloadRef is a spool
// file path for a 200; for every other status it carries no file and
// callers must not attempt to read it.
type Result struct {
	StatusCode int
	Length     int64
	PayloadRef string
	Route      route.Route
}

// HasBody reports whether PayloadRef names a real spool file to stream.
func (r Result) HasBody() bool { return r.StatusCode == http.StatusOK && r.PayloadRef != "" }

// Task downloads a single route's response into a spool file.
type Task struct {
	tp          *transport.Client
	tmpDir      string
	queryParams map[string]string
	numRetries  int
	retryWait   time.Duration
}

func NewTask(tp *transport.Client, tmpDir string, queryParams map[string]string, numRetries int, retryWait time.Duration) *Task {
	return &Task{tp: tp, tmpDir: tmpDir, queryParams: queryParams, numRetries: numRetries, retryWait: retryWait}
}

// Run executes the download for r, which must already be demultiplexed to
// exactly one stream epoch.
func (t *Task) Run(ctx context.Context, r route.Route) (Result, error) {
	if len(r.Epochs) != 1 {
		return Result{}, &ferr.BadSelector{Reason: "download task requires a demultiplexed route with exactly one epoch"}
	}
	epoch := r.Epochs[0]

	var lastErr error
	for attempt := 0; attempt <= t.numRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(t.retryWait):
			}
		}
		res, terminal, err := t.attempt(ctx, r, epoch)
		if terminal {
			if res.StatusCode != 0 {
				metrics.DownloadsTotal.WithLabelValues(strconv.Itoa(res.StatusCode)).Inc()
			}
			return res, err
		}
		lastErr = err
		nlog.Warningf("download attempt %d/%d for %s failed, retrying: %v", attempt+1, t.numRetries+1, r.URL, err)
	}
	return Result{}, &ferr.UpstreamUnavailable{Cause: ferr.Wrap(lastErr, "retries exhausted")}
}

// attempt issues one round trip. terminal is true when the caller must
// stop retrying, whether because the attempt succeeded (200 or 204) or
// because it hit a non-retriable outcome: any 4xx status, or a transport
// error not classified as retriable. Other statuses (5xx in particular)
// and retriable transport errors leave terminal false.
func (t *Task) attempt(ctx context.Context, r route.Route, epoch stream.Epoch) (res Result, terminal bool, err error) {
	h := reqbuilder.NewGranularFdsnRequestHandler(r.URL, t.queryParams, epoch, time.Now().UTC())
	req := h.Post()

	resp, err := t.tp.Do(ctx, transport.Request{Method: req.Method, URL: req.URL, Headers: req.Headers, Body: req.Body})
	if err != nil {
		if cos.IsUnreachable(err) || cos.IsRetriableConnErr(err) {
			return Result{}, false, err
		}
		return Result{}, true, &ferr.UpstreamUnavailable{Cause: err}
	}
	defer resp.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		path, n, err := t.spool(resp)
		if err != nil {
			return Result{}, true, &ferr.StreamingError{Cause: err}
		}
		return Result{StatusCode: http.StatusOK, Length: n, PayloadRef: path, Route: r}, true, nil

	case resp.StatusCode == http.StatusNoContent:
		return Result{StatusCode: http.StatusNoContent, Route: r}, true, nil

	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		// 413 is returned as-is, without splitting; any split-and-retry
		// policy lives one layer up (Handle413).
		return Result{StatusCode: http.StatusRequestEntityTooLarge, Route: r}, true, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Result{StatusCode: resp.StatusCode, Route: r}, true, nil

	default:
		return Result{StatusCode: resp.StatusCode, Route: r}, false, &ferr.UpstreamUnavailable{Cause: httpStatusError(resp.StatusCode)}
	}
}

func (t *Task) spool(resp *transport.Response) (path string, n int64, err error) {
	f, err := cos.CreateTmpFile(t.tmpDir, "fed")
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	n, err = cos.CopyChunked(f, resp.Body(), 64*1024)
	if err != nil {
		cos.RemoveTmpFile(f.Name())
		return "", 0, err
	}
	return f.Name(), n, nil
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return http.StatusText(int(e))
}
