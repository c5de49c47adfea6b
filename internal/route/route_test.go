package route_test

import (
	"time"

	"github.com/eidaws/federator/internal/route"
	"github.com/eidaws/federator/internal/stream"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func ep(net, sta string) stream.Epoch {
	now := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	return stream.New(net, sta, "", "BHZ", now.AddDate(0, 0, -1), now)
}

var _ = Describe("Table", func() {
	Describe("Demux", func() {
		It("expands multi-epoch routes preserving order", func() {
			t := route.Table{
				{URL: "A", Epochs: []stream.Epoch{ep("NL", "HGN"), ep("NL", "WIT")}},
				{URL: "B", Epochs: []stream.Epoch{ep("GE", "WLF")}},
			}
			demuxed := t.Demux()
			Expect(demuxed).To(HaveLen(3))
			Expect(demuxed[0].URL).To(Equal("A"))
			Expect(demuxed[0].Epochs[0].Station).To(Equal("HGN"))
			Expect(demuxed[1].Epochs[0].Station).To(Equal("WIT"))
			Expect(demuxed[2].URL).To(Equal("B"))
		})
	})

	Describe("GroupBy", func() {
		It("groups by network preserving intra-bucket order (stability invariant)", func() {
			t := route.Table{
				{URL: "A", Epochs: []stream.Epoch{ep("NL", "HGN")}},
				{URL: "B", Epochs: []stream.Epoch{ep("GE", "WLF")}},
				{URL: "C", Epochs: []stream.Epoch{ep("NL", "WIT")}},
			}
			g, err := route.GroupBy(t, route.KeyNetwork)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Order).To(Equal([]string{"NL", "GE"}))
			Expect(g.Bucket["NL"]).To(HaveLen(2))
			Expect(g.Bucket["NL"][0].URL).To(Equal("A"))
			Expect(g.Bucket["NL"][1].URL).To(Equal("C"))
		})

		It("rejects an unrecognized key", func() {
			t := route.Table{{URL: "A", Epochs: []stream.Epoch{ep("NL", "HGN")}}}
			_, err := route.GroupBy(t, route.Key("bogus"))
			Expect(err).To(HaveOccurred())
		})

		It("rejects a non-demultiplexed table", func() {
			t := route.Table{{URL: "A", Epochs: []stream.Epoch{ep("NL", "HGN"), ep("NL", "WIT")}}}
			_, err := route.GroupBy(t, route.KeyNetwork)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Reduce", func() {
		It("level=network keeps only the first route per network", func() {
			t := route.Table{
				{URL: "A", Epochs: []stream.Epoch{ep("GE", "X")}},
				{URL: "B", Epochs: []stream.Epoch{ep("NL", "Y")}},
				{URL: "C", Epochs: []stream.Epoch{ep("CH", "Z")}},
			}.Demux()
			g, err := route.Reduce(t, route.LevelNetwork)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Order).To(Equal([]string{"GE", "NL", "CH"}))
			for _, k := range g.Order {
				Expect(g.Bucket[k]).To(HaveLen(1))
			}
		})

		It("level=station keeps first per network.station then regroups by network", func() {
			t := route.Table{
				{URL: "A", Epochs: []stream.Epoch{ep("GE", "X")}},
				{URL: "B", Epochs: []stream.Epoch{ep("GE", "X")}}, // duplicate network.station, dropped
				{URL: "C", Epochs: []stream.Epoch{ep("GE", "Y")}},
			}.Demux()
			g, err := route.Reduce(t, route.LevelStation)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Order).To(Equal([]string{"GE"}))
			Expect(g.Bucket["GE"]).To(HaveLen(2))
			Expect(g.Bucket["GE"][0].URL).To(Equal("A"))
			Expect(g.Bucket["GE"][1].URL).To(Equal("C"))
		})

		It("any other level groups by network with no reduction", func() {
			t := route.Table{
				{URL: "A", Epochs: []stream.Epoch{ep("GE", "X")}},
				{URL: "B", Epochs: []stream.Epoch{ep("GE", "X")}},
			}.Demux()
			g, err := route.Reduce(t, route.LevelChannel)
			Expect(err).NotTo(HaveOccurred())
			Expect(g.Bucket["GE"]).To(HaveLen(2))
		})
	})
})
