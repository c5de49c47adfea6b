// Package reqbuilder builds outbound HTTP requests for the routing
// service and for data-centre endpoints: recognised-parameter filtering,
// URL normalization, and the GET/POST factory pair shared by every
// handler.
package reqbuilder

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eidaws/federator/internal/stream"
)

// Version is embedded in the User-Agent header of every outbound
// request.
const Version = "1.0.0"

const userAgentPrefix = "EIDA-Federator/"

// baseHeaders are forced on every outbound request regardless of variant:
// a fixed User-Agent and an empty Accept-Encoding, because downstream
// merging (raw concatenation, XML combine) assumes uncompressed bytes.
func baseHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      userAgentPrefix + Version,
		"Accept-Encoding": "",
	}
}

// base holds the parsed-and-normalized target URL, the filtered query
// params, and the stream epochs a concrete handler will render into a
// request body. It is the common part of RoutingRequestHandler,
// FdsnRequestHandler, and GranularFdsnRequestHandler.
type base struct {
	rawURL      string
	queryParams map[string]string
	epochs      []stream.Epoch
	now         time.Time
}

// URL normalizes a target so that either a bare base URL or one
// already ending in "/query" resolves to exactly one "/query" suffix;
// routing-table URLs that already carry "/query" don't become
// "/query/query".
func (b *base) URL() string {
	u := strings.TrimSuffix(strings.TrimSuffix(b.rawURL, "/"), "query")
	u = strings.TrimSuffix(u, "/")
	return u + "/query"
}

// postBody renders "key=value" lines followed by one stream-epoch line
// per epoch, joined by single newlines. Data-centre endpoints take the
// epoch lines directly after the last parameter; the routing service's
// POST form separates the two blocks with a blank line.
func (b *base) postBody(blankSep bool) string {
	var sb strings.Builder
	for _, k := range sortedKeys(b.queryParams) {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(b.queryParams[k])
		sb.WriteByte('\n')
	}
	if blankSep {
		sb.WriteByte('\n')
	}
	for i, e := range b.epochs {
		sb.WriteString(e.FormatLine(b.now))
		if i < len(b.epochs)-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HTTPRequest is the rendered outbound request: method, URL (with query
// string for GET), headers, and body (for POST).
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

//
// pooled allocation
//

var routingPool = sync.Pool{New: func() any { return new(RoutingRequestHandler) }}

func AllocRoutingHandler() *RoutingRequestHandler { return routingPool.Get().(*RoutingRequestHandler) }
func FreeRoutingHandler(h *RoutingRequestHandler) {
	*h = RoutingRequestHandler{}
	routingPool.Put(h)
}
