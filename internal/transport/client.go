// Package transport is the federator's egress HTTP client: every
// outbound call to the routing service or to an FDSN data-centre
// endpoint goes through here. Response bodies are streamed, so a
// multi-gigabyte dataselect reply never has to live fully in memory
// before it reaches the spool file.
package transport

import (
	"context"
	"io"
	"time"

	"github.com/valyala/fasthttp"
)

// Response is the result of one round trip: status code plus a streamed
// body reader. Close must be called to return the underlying fasthttp
// buffers to their pool once the body has been fully consumed (or
// abandoned).
type Response struct {
	StatusCode int
	Header     *fasthttp.ResponseHeader
	body       io.Reader
	release    func()
}

func (r *Response) Body() io.Reader { return r.body }
func (r *Response) Close() {
	if r.release != nil {
		r.release()
	}
}

// Client wraps a fasthttp.Client configured for streaming responses and
// no transparent decompression.
type Client struct {
	fh *fasthttp.Client
}

func New(connTimeout time.Duration) *Client {
	return &Client{fh: &fasthttp.Client{
		StreamResponseBody:            true,
		DisablePathNormalizing:        true,
		NoDefaultUserAgentHeader:      true,
		MaxConnDuration:               0,
		MaxIdleConnDuration:           90 * time.Second,
		MaxConnWaitTimeout:            connTimeout,
		DisableHeaderNamesNormalizing: false,
	}}
}

// Request is everything needed to issue one outbound call; Method
// defaults to GET.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Do issues req and returns a streamed Response. The caller must Close it.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	freq := fasthttp.AcquireRequest()
	fresp := fasthttp.AcquireResponse()

	freq.SetRequestURI(req.URL)
	if req.Method == "" {
		req.Method = "GET"
	}
	freq.Header.SetMethod(req.Method)
	for k, v := range req.Headers {
		freq.Header.Set(k, v)
	}
	if req.Body != nil {
		freq.SetBody(req.Body)
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	} else {
		deadline = time.Now().Add(5 * time.Minute)
	}

	err := c.fh.DoDeadline(freq, fresp, deadline)
	fasthttp.ReleaseRequest(freq)
	if err != nil {
		fasthttp.ReleaseResponse(fresp)
		return nil, err
	}

	resp := &Response{
		StatusCode: fresp.StatusCode(),
		Header:     &fresp.Header,
		body:       fresp.BodyStream(),
		release:    func() { fasthttp.ReleaseResponse(fresp) },
	}
	return resp, nil
}
