// Package ingress implements the federator's HTTP front door: the three
// fixed FDSN service paths, GET/POST request parsing, and dispatch into
// the matching request-processor variant.
package ingress

import (
	"bufio"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eidaws/federator/internal/ferr"
	"github.com/eidaws/federator/internal/stream"
)

// ParseRequest extracts the service query params and stream epochs from a
// client request, accepting both GET (query string, one selector) and
// POST (body "key=value\n...\n<stream-epoch lines>", one or more
// selectors) forms.
func ParseRequest(r *http.Request) (map[string]string, []stream.Epoch, error) {
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
		if err != nil {
			return nil, nil, err
		}
		return parsePostBody(string(body))
	}
	return parseQueryForm(r.URL.Query())
}

// parsePostBody splits the body into its leading "key=value" parameter
// block and the stream-epoch lines that follow: the first line without a
// "=" ends the parameter block. Blank lines are tolerated anywhere.
func parsePostBody(body string) (map[string]string, []stream.Epoch, error) {
	params := make(map[string]string)
	var epochs []stream.Epoch

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	inParams := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if inParams {
			if k, v, ok := strings.Cut(line, "="); ok {
				params[k] = v
				continue
			}
			inParams = false
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
	return params, epochs, nil
}

// streamFields are the FDSNWS selector query params a GET request carries
// individually; everything else is a service query param forwarded as-is.
var streamFields = map[string]bool{
	"network": true, "station": true, "location": true, "channel": true,
	"starttime": true, "endtime": true,
}

func parseQueryForm(q map[string][]string) (map[string]string, []stream.Epoch, error) {
	params := make(map[string]string)
	get := func(key, def string) string {
		if v, ok := q[key]; ok && len(v) > 0 && v[0] != "" {
			return v[0]
		}
		return def
	}
	for k, v := range q {
		if streamFields[k] || len(v) == 0 {
			continue
		}
		params[k] = v[0]
	}

	network := get("network", "*")
	station := get("station", "*")
	location := get("location", "--")
	if location == "--" {
		location = ""
	}
	channel := get("channel", "*")

	var start, end time.Time
	var err error
	if s := get("starttime", ""); s != "" {
		start, err = stream.ParseTime(s)
		if err != nil {
			return nil, nil, &ferr.BadSelector{Reason: "bad starttime: " + err.Error()}
		}
	}
	if e := get("endtime", ""); e != "" {
		end, err = stream.ParseTime(e)
		if err != nil {
			return nil, nil, &ferr.BadSelector{Reason: "bad endtime: " + err.Error()}
		}
	}
	epoch := stream.New(network, station, location, channel, start, end)
	return params, []stream.Epoch{epoch}, nil
}
