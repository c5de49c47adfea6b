// Package routing implements the routing-service client: it issues the
// routing request and parses the line-oriented "POST format" reply into
// a route.Table.
package routing

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/eidaws/federator/internal/route"
	"github.com/eidaws/federator/internal/stream"
)

// limitPrefix marks an access-limits comment line some routing
// deployments emit inside an endpoint block: "# LIMIT <n>", the
// endpoint's advertised cap on concurrent requests.
const limitPrefix = "# LIMIT "

// ParseTable parses a routing-service POST-format reply: a sequence of
// blocks separated by blank lines, each block's first non-blank line an
// endpoint URL and subsequent lines stream-epoch lines. A blank line
// followed by EOF closes the last block.
func ParseTable(body string) (route.Table, error) {
	table, _, err := ParseTableLimits(body)
	return table, err
}

// ParseTableLimits additionally collects per-endpoint access limits from
// "# LIMIT <n>" comment lines; limits is keyed by the block's endpoint
// URL and empty when the reply carries none.
func ParseTableLimits(body string) (table route.Table, limits map[string]int, err error) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	limits = make(map[string]int)
	var (
		curURL   string
		epochs   []stream.Epoch
		curLimit int
		started  bool
	)
	flush := func() {
		if started && curURL != "" {
			table = append(table, route.Route{URL: curURL, Epochs: epochs})
			if curLimit > 0 {
				limits[curURL] = curLimit
			}
		}
		curURL, epochs, curLimit, started = "", nil, 0, false
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, limitPrefix) {
				if n, err := strconv.Atoi(strings.TrimSpace(line[len(limitPrefix):])); err == nil {
					curLimit = n
				}
			}
			continue
		}
		if !started {
			curURL = line
			started = true
			continue
		}
		e, err := stream.ParseLine(line)
		if err != nil {
			return nil, nil, err
		}
		epochs = append(epochs, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	flush()
	return table, limits, nil
}
