package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/parley/pkg/eventstream"
	"github.com/papercomputeco/parley/pkg/eventstream/kafka"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
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

func header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

var _ = Describe("Publisher", func() {
	var writer *recordingWriter

	BeforeEach(func() {
		writer = &recordingWriter{}
	})

	It("requires a topic and brokers", func() {
		_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
		Expect(err).To(MatchError(ContainSubstring("topic")))

		_, err = kafka.NewPublisher(kafka.Config{Topic: "parley.events"})
		Expect(err).To(MatchError(ContainSubstring("broker")))

		p, err := kafka.NewPublisher(kafka.Config{Topic: "parley.events", Brokers: []string{"localhost:9092"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})

	It("writes JSON keyed by request id with type headers", func() {
		p, err := kafka.NewPublisher(kafka.Config{Topic: "parley.events", Writer: writer})
		Expect(err).NotTo(HaveOccurred())

		event := eventstream.NewRequestSummarized("req-7", "one peer can help", 1)
		Expect(p.Publish(context.Background(), event)).To(Succeed())

		Expect(writer.msgs).To(HaveLen(1))
		msg := writer.msgs[0]
		Expect(string(msg.Key)).To(Equal("req-7"))
		Expect(header(msg, kafka.HeaderEventType)).To(Equal(eventstream.EventTypeRequestSummarized))
		Expect(header(msg, kafka.HeaderSchemaVersion)).To(Equal("1"))

		var decoded eventstream.Event
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded.EventID).To(Equal(event.EventID))
		Expect(decoded.Summary.Text).To(Equal("one peer can help"))
	})

	It("rejects nil events", func() {
		p, err := kafka.NewPublisher(kafka.Config{Topic: "t", Writer: writer})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Publish(context.Background(), nil)).To(MatchError(eventstream.ErrNilEvent))
	})

	It("wraps write failures", func() {
		writer.err = errors.New("broker unavailable")
		p, err := kafka.NewPublisher(kafka.Config{Topic: "t", Writer: writer})
		Expect(err).NotTo(HaveOccurred())

		err = p.Publish(context.Background(), eventstream.NewRequestSummarized("r", "s", 0))
		Expect(err).To(MatchError(ContainSubstring("broker unavailable")))
	})

	It("closes the writer", func() {
		p, err := kafka.NewPublisher(kafka.Config{Topic: "t", Writer: writer})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())
		Expect(writer.closed).To(BeTrue())
	})
})
