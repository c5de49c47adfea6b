package routing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eidaws/federator/internal/ferr"
	"github.com/eidaws/federator/internal/reqbuilder"
	"github.com/eidaws/federator/internal/route"
	"github.com/eidaws/federator/internal/stream"
	"github.com/eidaws/federator/internal/transport"
)

// Client invokes the external routing service. It is stateless and
// safe for concurrent use across requests.
type Client struct {
	tp      *transport.Client
	url     string
	limiter Initer
}

// Initer receives per-endpoint access limits discovered in routing
// replies; implemented by the limiter slot pool.
type Initer interface {
	Init(url string, capacity int)
}

func New(tp *transport.Client, routingServiceURL string) *Client {
	return &Client{tp: tp, url: routingServiceURL}
}

// DiscoverLimits makes the client forward "# LIMIT <n>" metadata from
// each routing reply to l.
func (c *Client) DiscoverLimits(l Initer) { c.limiter = l }

// Route builds the routing request, issues it (POST: a body beats a
// long query string once stream epochs are involved), and parses the
// reply.
//
// Failures: a 204 response surfaces as ferr.NoContent ("empty dataset");
// any other non-2xx or transport error surfaces as
// ferr.UpstreamUnavailable.
func (c *Client) Route(ctx context.Context, queryParams map[string]string, epochs []stream.Epoch) (route.Table, error) {
	now := time.Now().UTC()
	h := reqbuilder.NewRoutingRequestHandler(c.url, queryParams, epochs, now)
	req := h.Post()
	reqbuilder.FreeRoutingHandler(h)

	resp, err := c.tp.Do(ctx, transport.Request{Method: req.Method, URL: req.URL, Headers: req.Headers, Body: req.Body})
	if err != nil {
		return nil, &ferr.UpstreamUnavailable{Cause: err}
	}
	defer resp.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, &ferr.NoContent{Reason: "routing service returned 204"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ferr.UpstreamUnavailable{Cause: fmt.Errorf("routing service replied with status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body())
	if err != nil {
		return nil, &ferr.UpstreamUnavailable{Cause: err}
	}
	table, limits, err := ParseTableLimits(string(body))
	if err != nil {
		return nil, err
	}
	if c.limiter != nil {
		for url, n := range limits {
			c.limiter.Init(url, n)
		}
	}
	return table, nil
}
