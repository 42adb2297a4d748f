package eventbus_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nusendra/ployer/internal/eventbus"
)

var _ = Describe("Bus", func() {
	var bus *eventbus.Bus

	BeforeEach(func() {
		bus = eventbus.New(0)
	})

	It("delivers a published event to a subscriber", func() {
		sub := bus.Subscribe()
		defer sub.Unsubscribe()

		bus.Publish(eventbus.NewAppHealth("app-1", "healthy"))

		Eventually(sub.Events).Should(Receive(Equal(eventbus.NewAppHealth("app-1", "healthy"))))
	})

	It("fans the same event out to every subscriber", func() {
		a := bus.Subscribe()
		b := bus.Subscribe()
		defer a.Unsubscribe()
		defer b.Unsubscribe()

		bus.Publish(eventbus.NewServerHealth("srv-1", "up"))

		Eventually(a.Events).Should(Receive())
		Eventually(b.Events).Should(Receive())
	})

	It("only delivers events published after subscribing", func() {
		bus.Publish(eventbus.NewAppHealth("app-0", "healthy"))

		sub := bus.Subscribe()
		defer sub.Unsubscribe()

		bus.Publish(eventbus.NewAppHealth("app-1", "healthy"))

		Eventually(sub.Events).Should(Receive(Equal(eventbus.NewAppHealth("app-1", "healthy"))))
		Consistently(sub.Events, 50*time.Millisecond).ShouldNot(Receive())
	})

	It("reports the current subscriber count", func() {
		Expect(bus.SubscriberCount()).To(Equal(0))

		sub := bus.Subscribe()
		Expect(bus.SubscriberCount()).To(Equal(1))

		sub.Unsubscribe()
		Expect(bus.SubscriberCount()).To(Equal(0))
	})

	It("closes the subscriber's channel on Unsubscribe", func() {
		sub := bus.Subscribe()
		sub.Unsubscribe()

		_, ok := <-sub.Events
		Expect(ok).To(BeFalse())
	})

	It("never blocks Publish when a subscriber's buffer is full, and increments lag", func() {
		bus = eventbus.New(2)
		sub := bus.Subscribe()
		defer sub.Unsubscribe()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 10; i++ {
				bus.Publish(eventbus.NewDeploymentLog("dep-1", "line"))
			}
		}()

		Eventually(done).Should(BeClosed())
		Expect(sub.Lag()).To(BeNumerically(">", 0))
	})

	It("delivers the most recently published events when overflowing, not stale ones", func() {
		bus = eventbus.New(1)
		sub := bus.Subscribe()
		defer sub.Unsubscribe()

		bus.Publish(eventbus.NewDeploymentLog("dep-1", "first"))
		bus.Publish(eventbus.NewDeploymentLog("dep-1", "second"))
		bus.Publish(eventbus.NewDeploymentLog("dep-1", "third"))

		var last eventbus.Event
		Eventually(sub.Events).Should(Receive(&last))
		Expect(last.DeploymentLog.Line).To(Equal("third"))
	})

	It("Lag returns zero for an unknown subscription id", func() {
		sub := bus.Subscribe()
		sub.Unsubscribe()
		Expect(sub.Lag()).To(Equal(0))
	})
})
