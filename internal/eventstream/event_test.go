package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lazypower/recall/internal/eventstream"
)

var _ = Describe("GroupRetiredEvent", func() {
	It("fills schema fields", func() {
		at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))
		event := eventstream.NewGroupRetiredEvent("tok-1", "checkout", "2024-03", "summary::checkout::2024-03", []string{"a", "b"}, 0.05, at)

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal("recall.group.retired"))
		Expect(event.EventID).To(Equal("tok-1"))
		Expect(event.EmittedAt.Location()).To(Equal(time.UTC))
		Expect(event.EmittedAt.Equal(at)).To(BeTrue())
	})

	It("marshals with expected top-level keys", func() {
		event := eventstream.NewGroupRetiredEvent("tok-1", "checkout", "2024-03", "summary::checkout::2024-03", []string{"a"}, 0.05, time.Unix(1735689600, 0))

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())
		for _, key := range []string{"schema_version", "event_type", "event_id", "emitted_at", "project", "month", "summary_id", "record_ids", "boost_step"} {
			Expect(got).To(HaveKey(key))
		}
		Expect(got["record_ids"]).To(ConsistOf("a"))
	})

	It("provides ErrNilEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilEvent).To(MatchError("nil event"))
	})
})
