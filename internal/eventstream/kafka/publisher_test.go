package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/lazypower/recall/internal/eventstream"
)

type recordingWriter struct {
	msgs    []kafkago.Message
	err     error
	closed  bool
	lastCtx context.Context
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.lastCtx = ctx
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	var (
		w *recordingWriter
		p *Publisher
		e *eventstream.GroupRetiredEvent
	)

	BeforeEach(func() {
		w = &recordingWriter{}
		p = newPublisher(w, "recall.lifecycle", time.Second)
		e = eventstream.NewGroupRetiredEvent("tok-1", "checkout", "2024-03", "summary::checkout::2024-03", []string{"a", "b"}, 0.05, time.Unix(1735689600, 0))
	})

	It("validates configuration", func() {
		_, err := NewPublisher(Config{Topic: "t"})
		Expect(err).To(MatchError(ContainSubstring("broker")))

		_, err = NewPublisher(Config{Brokers: []string{"localhost:9092"}})
		Expect(err).To(MatchError(ContainSubstring("topic")))

		pub, err := NewPublisher(Config{Brokers: []string{"localhost:9092"}, Topic: "t", ClientID: "recall"})
		Expect(err).NotTo(HaveOccurred())
		Expect(pub.Close()).To(Succeed())
	})

	It("rejects nil events", func() {
		Expect(p.PublishGroupRetired(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(w.msgs).To(BeEmpty())
	})

	It("writes one message keyed by summary id", func() {
		Expect(p.PublishGroupRetired(context.Background(), e)).To(Succeed())
		Expect(w.msgs).To(HaveLen(1))

		msg := w.msgs[0]
		Expect(string(msg.Key)).To(Equal("summary::checkout::2024-03"))
		Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte("recall.group.retired")}))

		var decoded eventstream.GroupRetiredEvent
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.RecordIDs).To(Equal([]string{"a", "b"}))
		Expect(decoded.EventID).To(Equal("tok-1"))
	})

	It("bounds writes with the configured timeout", func() {
		Expect(p.PublishGroupRetired(context.Background(), e)).To(Succeed())
		_, ok := w.lastCtx.Deadline()
		Expect(ok).To(BeTrue())
	})

	It("wraps writer errors", func() {
		w.err = errors.New("leader not available")
		err := p.PublishGroupRetired(context.Background(), e)
		Expect(err).To(MatchError(ContainSubstring("recall.lifecycle")))
		Expect(errors.Is(err, w.err)).To(BeTrue())
	})

	It("closes the writer", func() {
		Expect(p.Close()).To(Succeed())
		Expect(w.closed).To(BeTrue())
	})
})
