package reqbuilder

import (
	"net/url"
	"time"

	"github.com/eidaws/federator/internal/stream"
)

// routingQueryParams is the recognized subset forwarded to the routing
// service.
var routingQueryParams = map[string]bool{
	"service":     true,
	"level":       true,
	"minlatitude": true, "minlat": true,
	"maxlatitude": true, "maxlat": true,
	"minlongitude": true, "minlon": true,
	"maxlongitude": true, "maxlon": true,
}

// RoutingRequestHandler builds the request the federator sends to the
// external routing service: filters caller query params to the
// recognized subset, forces format=post, and offers both a GET and a POST
// factory.
type RoutingRequestHandler struct {
	base
}

func NewRoutingRequestHandler(routingURL string, queryParams map[string]string, epochs []stream.Epoch, now time.Time) *RoutingRequestHandler {
	h := AllocRoutingHandler()
	h.rawURL = routingURL
	h.epochs = epochs
	h.now = now
	h.queryParams = make(map[string]string, len(queryParams)+1)
	for k, v := range queryParams {
		if routingQueryParams[k] {
			h.queryParams[k] = v
		}
	}
	h.queryParams["format"] = "post"
	return h
}

// Get renders a GET request: recognized params (plus format=post) become
// the query string; no stream epochs are sent (the routing service's GET
// form is a coarse bounding-box/level query, not a per-epoch one).
func (h *RoutingRequestHandler) Get() HTTPRequest {
	q := url.Values{}
	for k, v := range h.queryParams {
		q.Set(k, v)
	}
	hdrs := baseHeaders()
	return HTTPRequest{
		Method:  "GET",
		URL:     h.URL() + "?" + q.Encode(),
		Headers: hdrs,
	}
}

// Post renders a POST request: body is "key=value" lines, a blank line,
// then one stream-epoch line per epoch.
func (h *RoutingRequestHandler) Post() HTTPRequest {
	hdrs := baseHeaders()
	return HTTPRequest{
		Method:  "POST",
		URL:     h.URL(),
		Headers: hdrs,
		Body:    []byte(h.postBody(true)),
	}
}
