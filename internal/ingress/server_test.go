package ingress_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/eidaws/federator/internal/config"
	"github.com/eidaws/federator/internal/ingress"
	"github.com/eidaws/federator/internal/limiter"
	"github.com/eidaws/federator/internal/process"
	"github.com/eidaws/federator/internal/routing"
	"github.com/eidaws/federator/internal/transport"
)

const epochLine = "NL HGN -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000"

func newGateway(t *testing.T, routingHandler http.HandlerFunc) (*httptest.Server, string) {
	t.Helper()
	rs := httptest.NewServer(routingHandler)
	t.Cleanup(rs.Close)

	tmp := t.TempDir()
	cfg := &config.Config{
		RoutingServiceURL:    rs.URL,
		TmpDir:               tmp,
		StreamingTimeout:     5 * time.Second,
		ThreadsDataselect:    4,
		ThreadsStationText:   4,
		ThreadsStationXML:    4,
		ThreadsWfcatalog:     4,
		NumRetries:           0,
		RetryWait:            10 * time.Millisecond,
		SlotFallbackCapacity: 4,
	}
	tp := transport.New(5 * time.Second)
	deps := &process.Deps{
		Transport: tp,
		Pool:      limiter.NewPool(limiter.NewMemStore(), cfg.SlotFallbackCapacity),
		TmpDir:    tmp,
	}
	gw := httptest.NewServer(ingress.NewServer(cfg, deps, routing.New(tp, rs.URL)))
	t.Cleanup(gw.Close)
	return gw, tmp
}

func endpoint(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			io.WriteString(w, body)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func routeBlocks(blocks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Join(blocks, "\n\n")+"\n")
	}
}

func TestDataselectConcatenatesTwoEndpoints(t *testing.T) {
	epA := endpoint(t, http.StatusOK, "AAAAAAAAAA")
	epB := endpoint(t, http.StatusOK, "BBBBBBBBBB")
	gw, tmp := newGateway(t, routeBlocks(
		epA.URL+"\n"+epochLine,
		epB.URL+"\n"+epochLine,
	))

	resp, err := http.Get(gw.URL + ingress.PathDataselect + "?network=NL&station=HGN&channel=BHZ&starttime=2020-01-01T00:00:00&endtime=2020-01-02T00:00:00")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.fdsn.mseed" {
		t.Fatalf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 20 {
		t.Fatalf("body length = %d, want 20 (no envelope)", len(body))
	}

	// Spool files are removed once streamed.
	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("spool dir not empty after streaming: %v", entries)
	}
}

func TestRouting204SurfacesAs204(t *testing.T) {
	gw, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	resp, err := http.Get(gw.URL + ingress.PathDataselect + "?network=XX")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Fatalf("expected no body, got %q", body)
	}
}

func TestEndpoint413SurfacesAs204(t *testing.T) {
	ep := endpoint(t, http.StatusRequestEntityTooLarge, "")
	gw, _ := newGateway(t, routeBlocks(ep.URL+"\n"+epochLine))

	resp, err := http.Get(gw.URL + ingress.PathDataselect + "?network=NL")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 (no 200 ever seen)", resp.StatusCode)
	}
}

func TestWfcatalogMixedSuccess(t *testing.T) {
	ep1 := endpoint(t, http.StatusOK, `[{"s":1}]`)
	ep2 := endpoint(t, http.StatusInternalServerError, "")
	ep3 := endpoint(t, http.StatusOK, `[{"s":3}]`)
	gw, _ := newGateway(t, routeBlocks(
		ep1.URL+"\n"+epochLine,
		ep2.URL+"\n"+epochLine,
		ep3.URL+"\n"+epochLine,
	))

	resp, err := http.Get(gw.URL + ingress.PathWfcatalog + "?network=NL")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	got := string(body)
	if got != `[{"s":1},{"s":3}]` && got != `[{"s":3},{"s":1}]` {
		t.Fatalf("body = %q, want the two surviving items comma-joined in one array", got)
	}
}

func TestStationTextLevelNetwork(t *testing.T) {
	line := func(net string) string {
		return fmt.Sprintf("%s|desc|2020-01-01|2020-01-02|1\n", net)
	}
	epGE := endpoint(t, http.StatusOK, line("GE"))
	epNL := endpoint(t, http.StatusOK, line("NL"))
	epCH := endpoint(t, http.StatusOK, line("CH"))
	gw, _ := newGateway(t, routeBlocks(
		epGE.URL+"\nGE APE -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000",
		epNL.URL+"\nNL HGN -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000",
		epCH.URL+"\nCH DAVOX -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000",
	))

	resp, err := http.Get(gw.URL + ingress.PathStation + "?format=text&level=network")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	if !strings.HasPrefix(lines[0], "#Network|") {
		t.Fatalf("missing network-level header, got %q", lines[0])
	}
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 data lines, got %d: %q", len(lines), body)
	}
}

func TestStationXMLCombinesTwoEndpointsIntoOneNetwork(t *testing.T) {
	doc := func(station string) string {
		return `<?xml version="1.0"?><FDSNStationXML xmlns="http://www.fdsn.org/xml/station/1">` +
			`<Network code="GE" startDate="1993-01-01T00:00:00"><Station code="` + station +
			`" startDate="2001-01-01T00:00:00"><Latitude>1.0</Latitude></Station></Network></FDSNStationXML>`
	}
	epA := endpoint(t, http.StatusOK, doc("ABC"))
	epB := endpoint(t, http.StatusOK, doc("DEF"))
	gw, _ := newGateway(t, routeBlocks(
		epA.URL+"\nGE ABC -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000",
		epB.URL+"\nGE DEF -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000",
	))

	resp, err := http.Get(gw.URL + ingress.PathStation + "?level=channel")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	got := string(body)
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?><FDSNStationXML`,
		`<Source>EIDA</Source>`,
		`</FDSNStationXML>`,
		`<Station code="ABC"`,
		`<Station code="DEF"`,
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("response missing %q:\n%s", want, got)
		}
	}
	if n := strings.Count(got, `<Network `); n != 1 {
		t.Fatalf("expected exactly one <Network> subtree, got %d:\n%s", n, got)
	}
	if strings.Index(got, `"ABC"`) > strings.Index(got, `"DEF"`) {
		t.Fatalf("station order should follow routing-table order:\n%s", got)
	}
}

func TestPostFormParsesParamsAndEpochs(t *testing.T) {
	ep := endpoint(t, http.StatusOK, "DATA")
	gw, _ := newGateway(t, routeBlocks(ep.URL+"\n"+epochLine))

	body := "quality=B\n" + epochLine + "\n"
	resp, err := http.Post(gw.URL+ingress.PathDataselect, "text/plain", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got, _ := io.ReadAll(resp.Body)
	if string(got) != "DATA" {
		t.Fatalf("body = %q", got)
	}
}

func TestPostFormToleratesBlankSeparator(t *testing.T) {
	ep := endpoint(t, http.StatusOK, "DATA")
	gw, _ := newGateway(t, routeBlocks(ep.URL+"\n"+epochLine))

	body := "quality=B\n\n" + epochLine + "\n"
	resp, err := http.Post(gw.URL+ingress.PathDataselect, "text/plain", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMalformedPostBodyIs400(t *testing.T) {
	gw, _ := newGateway(t, routeBlocks())
	resp, err := http.Post(gw.URL+ingress.PathDataselect, "text/plain",
		strings.NewReader("not-a-param-line\n\nNL HGN\n"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
