package eventstream_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dicomdex/dicomdex/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals SeriesEvent with expected top-level keys", func() {
		event := eventstream.NewSeriesEvent(eventstream.EventTypeSeriesIngested, "lumbar_disc")
		event.SeriesUID = "1.2.840.10008.999"
		event.IndexID = 7

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("tomography_type"))
		Expect(got).To(HaveKey("series_uid"))
		Expect(got).To(HaveKey("index_id"))
	})

	It("omits series fields not set for rebuild events", func() {
		event := eventstream.NewSeriesEvent(eventstream.EventTypeIndexRebuilt, "lumbar_disc")
		event.SeriesCount = 3

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).NotTo(HaveKey("series_uid"))
		Expect(got).NotTo(HaveKey("index_id"))
		Expect(got["series_count"]).To(BeEquivalentTo(3))
	})

	It("assigns fresh event ids", func() {
		first := eventstream.NewSeriesEvent(eventstream.EventTypeSeriesDeleted, "lumbar_disc")
		second := eventstream.NewSeriesEvent(eventstream.EventTypeSeriesDeleted, "lumbar_disc")

		Expect(first.EventID).NotTo(BeEmpty())
		Expect(first.EventID).NotTo(Equal(second.EventID))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeSeriesIngested).To(Equal("dicomdex.series.ingested"))
		Expect(eventstream.EventTypeSeriesDeleted).To(Equal("dicomdex.series.deleted"))
		Expect(eventstream.EventTypeIndexRebuilt).To(Equal("dicomdex.index.rebuilt"))
	})
})
