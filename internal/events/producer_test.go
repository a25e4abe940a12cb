package events

import (
	"bytes"
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", Ordered, func() {
	Context("write", func() {
		It("writes succsessfully", func() {
			w := newTestWriter()
			kp := NewEventProducer(w)

			msg := []byte("msg1")
			err := kp.Write(context.TODO(), JobMessageKind, bytes.NewReader(msg))
			Expect(err).To(BeNil())
			Eventually(w.Count).Should(Equal(1))
			Expect(w.Messages()[0].Context.GetType()).To(Equal(JobMessageKind))

			msg = []byte("msg2")
			err = kp.Write(context.TODO(), ImageMessageKind, bytes.NewReader(msg))
			Expect(err).To(BeNil())
			Eventually(w.Count).Should(Equal(2))

			kp.Close()
		})
	})
})

type testwriter struct {
	messages []cloudevents.Event
	ch       chan cloudevents.Event
}

func newTestWriter() *testwriter {
	return &testwriter{ch: make(chan cloudevents.Event, 16)}
}

func (t *testwriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	t.ch <- e
	return nil
}

func (t *testwriter) Close(_ context.Context) error {
	return nil
}

func (t *testwriter) Count() int {
	return len(t.Messages())
}

func (t *testwriter) Messages() []cloudevents.Event {
	for {
		select {
		case e := <-t.ch:
			t.messages = append(t.messages, e)
		default:
			return t.messages
		}
	}
}
