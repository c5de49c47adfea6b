package routing_test

import (
	"testing"

	"github.com/eidaws/federator/internal/routing"
)

const sampleReply = `http://dc-a.example/fdsnws/dataselect/1
NL HGN -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000
NL WIT -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000

http://dc-b.example/fdsnws/dataselect/1
GE WLF -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000
`

func TestParseTableTwoBlocks(t *testing.T) {
	table, err := routing.ParseTable(sampleReply)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("len(table) = %d, want 2", len(table))
	}
	if table[0].URL != "http://dc-a.example/fdsnws/dataselect/1" || len(table[0].Epochs) != 2 {
		t.Fatalf("unexpected first route: %+v", table[0])
	}
	if table[1].URL != "http://dc-b.example/fdsnws/dataselect/1" || len(table[1].Epochs) != 1 {
		t.Fatalf("unexpected second route: %+v", table[1])
	}
}

func TestParseTableIdempotent(t *testing.T) {
	a, err := routing.ParseTable(sampleReply)
	if err != nil {
		t.Fatal(err)
	}
	b, err := routing.ParseTable(sampleReply)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("two parses of the same text diverged: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].URL != b[i].URL || len(a[i].Epochs) != len(b[i].Epochs) {
			t.Fatalf("route %d diverged: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestParseTableNoTrailingBlankLine(t *testing.T) {
	body := "http://dc-a.example/query\nNL HGN -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000"
	table, err := routing.ParseTable(body)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(table) != 1 || len(table[0].Epochs) != 1 {
		t.Fatalf("unexpected table: %+v", table)
	}
}

func TestParseTableLimitsCollectsAccessLimits(t *testing.T) {
	body := `# LIMIT 3
http://dc-a.example/query
NL HGN -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000

http://dc-b.example/query
# LIMIT 7
GE WLF -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000
`
	table, limits, err := routing.ParseTableLimits(body)
	if err != nil {
		t.Fatalf("ParseTableLimits: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("len(table) = %d, want 2", len(table))
	}
	if limits["http://dc-a.example/query"] != 3 || limits["http://dc-b.example/query"] != 7 {
		t.Fatalf("unexpected limits: %v", limits)
	}
}

func TestParseTableIgnoresUnknownComments(t *testing.T) {
	body := "# generated by eidaws-routing\nhttp://dc-a.example/query\nNL HGN -- BHZ 2020-01-01T00:00:00.000 2020-01-02T00:00:00.000\n"
	table, limits, err := routing.ParseTableLimits(body)
	if err != nil {
		t.Fatalf("ParseTableLimits: %v", err)
	}
	if len(table) != 1 || len(limits) != 0 {
		t.Fatalf("table=%v limits=%v", table, limits)
	}
}
