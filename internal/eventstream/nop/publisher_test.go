package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lazypower/recall/internal/eventstream"
	"github.com/lazypower/recall/internal/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	It("returns ErrNilEvent for nil events", func() {
		err := nop.NewPublisher().PublishGroupRetired(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilEvent))
	})

	It("accepts events", func() {
		err := nop.NewPublisher().PublishGroupRetired(context.Background(), &eventstream.GroupRetiredEvent{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("closes successfully", func() {
		Expect(nop.NewPublisher().Close()).To(Succeed())
	})
})
