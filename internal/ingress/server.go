package ingress

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eidaws/federator/internal/config"
	"github.com/eidaws/federator/internal/ferr"
	"github.com/eidaws/federator/internal/metrics"
	"github.com/eidaws/federator/internal/nlog"
	"github.com/eidaws/federator/internal/process"
	"github.com/eidaws/federator/internal/route"
	"github.com/eidaws/federator/internal/routing"
)

// Service path prefixes. Wfcatalog lives under the eidaws
// namespace in real EIDA deployments, not fdsnws.
const (
	PathDataselect = "/fdsnws/dataselect/1/query"
	PathStation    = "/fdsnws/station/1/query"
	PathWfcatalog  = "/eidaws/wfcatalog/1/query"
	PathMetrics    = "/metrics"
)

const (
	mimeMseed = "application/vnd.fdsn.mseed"
	mimeXML   = "application/xml"
	mimeText  = "text/plain"
	mimeJSON  = "application/json"
)

// Server dispatches client requests into the request-processor variants.
type Server struct {
	cfg  *config.Config
	deps *process.Deps
	rc   *routing.Client
	mux  *http.ServeMux
}

func NewServer(cfg *config.Config, deps *process.Deps, rc *routing.Client) *Server {
	s := &Server{cfg: cfg, deps: deps, rc: rc, mux: http.NewServeMux()}
	s.mux.HandleFunc(PathDataselect, s.handleDataselect)
	s.mux.HandleFunc(PathStation, s.handleStation)
	s.mux.HandleFunc(PathWfcatalog, s.handleWfcatalog)
	s.mux.Handle(PathMetrics, promhttp.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// deferredWriter delays the status line and Content-Type until the first
// body byte: the processor only learns whether the request yields data
// after Phase 1, and an error before the first byte must still be able to
// choose its own status code.
type deferredWriter struct {
	w           http.ResponseWriter
	contentType string
	wrote       bool
	n           int64
}

func (d *deferredWriter) Write(p []byte) (int, error) {
	if !d.wrote {
		d.w.Header().Set("Content-Type", d.contentType)
		d.w.WriteHeader(http.StatusOK)
		d.wrote = true
	}
	n, err := d.w.Write(p)
	d.n += int64(n)
	return n, err
}

// run executes one variant submission function and translates its error
// (if any) into the response status, honoring the half-written-connection
// rule for mid-body failures.
func (s *Server) run(w http.ResponseWriter, r *http.Request, variant, contentType string,
	fn func(ctx context.Context, w *deferredWriter) error) {
	reqID := uuid.NewString()
	t0 := time.Now()
	dw := &deferredWriter{w: w, contentType: contentType}

	nlog.Infof("[%s] %s %s %s", reqID, variant, r.Method, r.URL.RequestURI())
	err := fn(r.Context(), dw)
	status := http.StatusOK
	if err != nil {
		status = ferr.Status(err)
	}
	metrics.RequestsTotal.WithLabelValues(variant, strconv.Itoa(status)).Inc()
	metrics.StreamDuration.WithLabelValues(variant).Observe(time.Since(t0).Seconds())

	if err == nil {
		nlog.Infof("[%s] %s done: %d body bytes in %v", reqID, variant, dw.n, time.Since(t0))
		return
	}

	var serr *ferr.StreamingError
	if dw.wrote || errors.As(err, &serr) {
		// Body already half-written; the client sees a short read.
		nlog.Errorf("[%s] %s truncated mid-body after %d bytes: %v", reqID, variant, dw.n, err)
		return
	}
	nlog.Warningf("[%s] %s failed: %v (status %d)", reqID, variant, err, status)
	if status == http.StatusNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) handleDataselect(w http.ResponseWriter, r *http.Request) {
	params, epochs, err := ParseRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	s.run(w, r, "dataselect", mimeMseed, func(ctx context.Context, dw *deferredWriter) error {
		return process.RunDataselect(ctx, dw, s.deps, s.rc, params, epochs,
			s.cfg.ThreadsDataselect, s.cfg.StreamingTimeout)
	})
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	params, epochs, err := ParseRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	level := route.Level(params["level"])
	if level == "" {
		level = route.LevelStation
	}
	if params["format"] == "text" {
		s.run(w, r, "station-text", mimeText, func(ctx context.Context, dw *deferredWriter) error {
			return process.RunStationText(ctx, dw, s.deps, s.rc, params, epochs, level,
				s.cfg.ThreadsStationText, s.cfg.StreamingTimeout)
		})
		return
	}
	s.run(w, r, "station-xml", mimeXML, func(ctx context.Context, dw *deferredWriter) error {
		return process.RunStationXML(ctx, dw, s.deps, s.rc, params, epochs, level,
			s.cfg.ThreadsStationXML, s.cfg.ThreadsStationXML, s.cfg.StreamingTimeout)
	})
}

func (s *Server) handleWfcatalog(w http.ResponseWriter, r *http.Request) {
	params, epochs, err := ParseRequest(r)
	if err != nil {
		badRequest(w, err)
		return
	}
	s.run(w, r, "wfcatalog", mimeJSON, func(ctx context.Context, dw *deferredWriter) error {
		return process.RunWfcatalog(ctx, dw, s.deps, s.rc, params, epochs,
			s.cfg.ThreadsWfcatalog, s.cfg.StreamingTimeout)
	})
}

func badRequest(w http.ResponseWriter, err error) {
	status := ferr.Status(err)
	nlog.Warningln("ingress: rejecting request:", err)
	http.Error(w, err.Error(), status)
}
