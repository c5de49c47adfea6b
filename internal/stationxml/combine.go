// Package stationxml implements the per-network combiner: it fans out a
// station-XML download to each contributing endpoint, parses the
// FDSNStationXML replies, and merges them into a single well-formed
// <Network> subtree. The merge is structural, keyed on identity
// attributes only; everything below a channel is carried verbatim from
// its first contributor.
package stationxml

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/eidaws/federator/internal/cos"
	"github.com/eidaws/federator/internal/download"
	"github.com/eidaws/federator/internal/ferr"
	"github.com/eidaws/federator/internal/nlog"
	"github.com/eidaws/federator/internal/route"
)

// genericElem captures one XML element's attributes and raw inner markup
// without interpreting its schema, used by splitChildren to re-render
// whatever it doesn't merge on.
type genericElem struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

// rawChild is one child element kept intact: its identity attributes plus
// its full serialised markup.
type rawChild struct {
	Attrs []xml.Attr
	Raw   []byte
}

func attrVal(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func renderElement(tag string, attrs []xml.Attr, inner []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte('<')
	buf.WriteString(tag)
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name.Local)
		buf.WriteString(`="`)
		xml.EscapeText(&buf, []byte(a.Value))
		buf.WriteByte('"')
	}
	buf.WriteByte('>')
	buf.Write(inner)
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteByte('>')
	return buf.Bytes()
}

// splitChildren decodes one element (raw must hold exactly that element's
// full markup, optionally preceded by an XML declaration) and separates its children into those tagged childTag
// (returned with their own attrs for merge-key extraction) from every
// other child, whose markup is re-rendered verbatim into otherRaw in
// source order.
func splitChildren(raw []byte, childTag string) (attrs []xml.Attr, otherRaw []byte, children []rawChild, err error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		tok   xml.Token
		start xml.StartElement
	)
	for {
		if tok, err = dec.Token(); err != nil {
			return nil, nil, nil, err
		}
		// An XML declaration, comments or whitespace may precede the element.
		if se, ok := tok.(xml.StartElement); ok {
			start = se
			break
		}
	}
	attrs = start.Attr

	var other bytes.Buffer
	for {
		tok, err = dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var e genericElem
			if err := dec.DecodeElement(&e, &t); err != nil {
				return nil, nil, nil, err
			}
			markup := renderElement(t.Name.Local, e.Attrs, e.Inner)
			if t.Name.Local == childTag {
				children = append(children, rawChild{Attrs: e.Attrs, Raw: markup})
			} else {
				other.Write(markup)
			}
		case xml.EndElement:
			if t.Name == start.Name {
				return attrs, other.Bytes(), children, nil
			}
		}
	}
	return attrs, other.Bytes(), children, nil
}

func stationKey(c rawChild) string {
	return attrVal(c.Attrs, "code") + "\x00" + attrVal(c.Attrs, "startDate")
}

func channelKey(c rawChild) string {
	return attrVal(c.Attrs, "code") + "\x00" + attrVal(c.Attrs, "locationCode") + "\x00" + attrVal(c.Attrs, "startDate")
}

// mergeStations unions src's channels into dst by (code, locationCode,
// startDate); a channel key already present in dst keeps dst's markup
// untouched (first contributor wins).
func mergeStations(dst, src rawChild) (rawChild, error) {
	dstAttrs, dstOther, dstCh, err := splitChildren(dst.Raw, "Channel")
	if err != nil {
		return rawChild{}, err
	}
	_, _, srcCh, err := splitChildren(src.Raw, "Channel")
	if err != nil {
		return rawChild{}, err
	}
	seen := make(map[string]bool, len(dstCh))
	for _, ch := range dstCh {
		seen[channelKey(ch)] = true
	}
	for _, ch := range srcCh {
		k := channelKey(ch)
		if seen[k] {
			continue
		}
		seen[k] = true
		dstCh = append(dstCh, ch)
	}
	inner := dstOther
	for _, ch := range dstCh {
		inner = append(inner, ch.Raw...)
	}
	return rawChild{Attrs: dstAttrs, Raw: renderElement("Station", dstAttrs, inner)}, nil
}

// mergeNetworks folds every occurrence of the target network code across
// contributors into one <Network> subtree, unioning Station children by
// (code, startDate) and recursively unioning Channel children within
// matching stations.
func mergeNetworks(occurrences []rawChild) (rawChild, error) {
	var (
		netAttrs []xml.Attr
		netOther []byte
		stations []rawChild
		stIndex  = make(map[string]int)
	)
	for i, occ := range occurrences {
		attrs, other, stChildren, err := splitChildren(occ.Raw, "Station")
		if err != nil {
			return rawChild{}, err
		}
		if i == 0 {
			netAttrs, netOther = attrs, other
		}
		for _, st := range stChildren {
			k := stationKey(st)
			if idx, ok := stIndex[k]; ok {
				merged, err := mergeStations(stations[idx], st)
				if err != nil {
					return rawChild{}, err
				}
				stations[idx] = merged
			} else {
				stIndex[k] = len(stations)
				stations = append(stations, st)
			}
		}
	}
	inner := netOther
	for _, st := range stations {
		inner = append(inner, st.Raw...)
	}
	return rawChild{Attrs: netAttrs, Raw: renderElement("Network", netAttrs, inner)}, nil
}

// parseNetworks decodes an FDSNStationXML document and returns its
// top-level <Network> children, matching splitChildren's contract by
// treating the whole document as the outer element.
func parseNetworks(body []byte) ([]rawChild, error) {
	_, _, networks, err := splitChildren(body, "Network")
	return networks, err
}

// Combiner runs the network combiner task for a single network code.
type Combiner struct {
	runChild func(ctx context.Context, r route.Route) (download.Result, error)
	poolSize int
}

func NewCombiner(runChild func(ctx context.Context, r route.Route) (download.Result, error), poolSize int) *Combiner {
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Combiner{runChild: runChild, poolSize: poolSize}
}

// Result mirrors download.Result's shape so the request processor treats
// a combined network identically to a plain download task.
type Result struct {
	StatusCode int
	Length     int64
	Payload    []byte
}

// Combine fans out one download per route in routes (all of which must
// share networkCode), merges the successful replies' <Network> subtree,
// and serialises it standalone (no prologue, no FDSNStationXML wrapper;
// the caller supplies those). Each child's spool file is removed once
// read. When no child contributes the network, the result carries the
// last non-200 status observed, alongside an error.
func (c *Combiner) Combine(ctx context.Context, networkCode string, routes route.Table) (Result, error) {
	type child struct {
		res download.Result
		err error
	}
	children := make([]child, len(routes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.poolSize)
	for i, r := range routes {
		i, r := i, r
		g.Go(func() error {
			res, err := c.runChild(gctx, r)
			children[i] = child{res: res, err: err}
			return nil // never abort siblings; partial success still yields a document
		})
	}
	_ = g.Wait()

	var (
		occurrences []rawChild
		lastStatus  = http.StatusInternalServerError
		errs        cos.Errs
	)
	for _, ch := range children {
		if ch.err != nil || ch.res.StatusCode != http.StatusOK {
			errs.Add(ch.err)
			if ch.res.StatusCode != 0 {
				lastStatus = ch.res.StatusCode
			}
			continue
		}
		body, err := readPayload(ch.res)
		cos.RemoveTmpFile(ch.res.PayloadRef)
		if err != nil {
			errs.Add(err)
			lastStatus = http.StatusInternalServerError
			continue
		}
		nets, err := parseNetworks(body)
		if err != nil {
			errs.Add(err)
			lastStatus = http.StatusInternalServerError
			continue
		}
		for _, n := range nets {
			if attrVal(n.Attrs, "code") == networkCode {
				occurrences = append(occurrences, n)
			}
		}
	}

	if len(occurrences) == 0 {
		if err := errs.JoinErr(); err != nil {
			nlog.Warningf("stationxml: network %s: every child failed: %v", networkCode, err)
		}
		return Result{StatusCode: lastStatus}, &ferr.UpstreamUnavailable{Cause: httpStatusErr(lastStatus)}
	}

	merged, err := mergeNetworks(occurrences)
	if err != nil {
		return Result{}, &ferr.StreamingError{Cause: err}
	}
	return Result{StatusCode: http.StatusOK, Length: int64(len(merged.Raw)), Payload: merged.Raw}, nil
}

func readPayload(res download.Result) ([]byte, error) {
	if res.PayloadRef == "" {
		return nil, nil
	}
	return os.ReadFile(res.PayloadRef)
}

type httpStatusErr int

func (e httpStatusErr) Error() string { return http.StatusText(int(e)) }
