package reqbuilder

import (
	"time"

	"github.com/eidaws/federator/internal/stream"
)

// fdsnExcludedParams are stripped before forwarding to a data-centre
// endpoint: these belong to the routing layer, not the endpoint.
var fdsnExcludedParams = map[string]bool{
	"service":      true,
	"nodata":       true,
	"bounding-box": true,
}

// FdsnRequestHandler builds a bulk (multi stream-epoch) POST request to a
// data-centre endpoint. Download tasks use it through
// GranularFdsnRequestHandler, with exactly one epoch.
type FdsnRequestHandler struct {
	base
}

func NewFdsnRequestHandler(endpointURL string, queryParams map[string]string, epochs []stream.Epoch, now time.Time) *FdsnRequestHandler {
	h := &FdsnRequestHandler{}
	h.rawURL = endpointURL
	h.epochs = epochs
	h.now = now
	h.queryParams = make(map[string]string, len(queryParams))
	for k, v := range queryParams {
		if !fdsnExcludedParams[k] {
			h.queryParams[k] = v
		}
	}
	return h
}

func (h *FdsnRequestHandler) Post() HTTPRequest {
	return HTTPRequest{
		Method:  "POST",
		URL:     h.URL(),
		Headers: baseHeaders(),
		Body:    []byte(h.postBody(false)),
	}
}

// GranularFdsnRequestHandler is the single-stream variant a download task
// uses: POST body is the filtered params followed by exactly one
// stream-epoch line.
type GranularFdsnRequestHandler struct {
	FdsnRequestHandler
}

func NewGranularFdsnRequestHandler(endpointURL string, queryParams map[string]string, epoch stream.Epoch, now time.Time) *GranularFdsnRequestHandler {
	return &GranularFdsnRequestHandler{
		FdsnRequestHandler: *NewFdsnRequestHandler(endpointURL, queryParams, []stream.Epoch{epoch}, now),
	}
}
