package callstack

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/hooking"
	"github.com/ikuo/appmap/idgen"
)

type anomalyCollector struct {
	lock      sync.Mutex
	anomalies []Anomaly
}

func (c *anomalyCollector) Func(ctx hooking.HookCtx) {
	if ctx.Pos != hooking.HookPosAnomaly {
		return
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.anomalies = append(c.anomalies, ctx.Item.(Anomaly))
}

var _ = Describe("Tracker", func() {
	var (
		mockCtrl  *gomock.Controller
		clock     *MockClock
		collector *anomalyCollector
		tracker   *Tracker
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		clock = NewMockClock(mockCtrl)
		collector = &anomalyCollector{}
		tracker = NewTracker().WithClock(clock)
		tracker.AcceptHook(collector)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should link nested calls and measure elapsed time", func() {
		gomock.InOrder(
			clock.EXPECT().Now().Return(1*time.Second),
			clock.EXPECT().Now().Return(2*time.Second),
			clock.EXPECT().Now().Return(2500*time.Millisecond),
			clock.EXPECT().Now().Return(4*time.Second),
		)

		_, hasParent := tracker.OnCall(1, 10)
		Expect(hasParent).To(BeFalse())

		parent, hasParent := tracker.OnCall(1, 11)
		Expect(hasParent).To(BeTrue())
		Expect(parent).To(Equal(idgen.ID(10)))
		Expect(tracker.Depth(1)).To(Equal(2))

		elapsed, abandoned, found := tracker.OnReturn(1, 11)
		Expect(found).To(BeTrue())
		Expect(abandoned).To(BeEmpty())
		Expect(elapsed).To(BeNumerically("~", 0.5, 1e-9))

		elapsed, _, found = tracker.OnReturn(1, 10)
		Expect(found).To(BeTrue())
		Expect(elapsed).To(BeNumerically("~", 3, 1e-9))
		Expect(tracker.Depth(1)).To(Equal(0))
		Expect(collector.anomalies).To(BeEmpty())
	})

	It("should keep threads apart", func() {
		clock.EXPECT().Now().Return(time.Duration(0)).AnyTimes()

		tracker.OnCall(1, 1)
		_, hasParent := tracker.OnCall(2, 2)

		Expect(hasParent).To(BeFalse())
		Expect(tracker.Open(1)).To(Equal([]idgen.ID{1}))
		Expect(tracker.Open(2)).To(Equal([]idgen.ID{2}))
		Expect(tracker.Threads()).To(ConsistOf(event.ThreadID(1), event.ThreadID(2)))
	})

	It("should unwind abandoned frames", func() {
		clock.EXPECT().Now().Return(time.Duration(0)).AnyTimes()

		tracker.OnCall(1, 1)
		tracker.OnCall(1, 2)
		tracker.OnCall(1, 3)

		_, abandoned, found := tracker.OnReturn(1, 1)

		Expect(found).To(BeTrue())
		Expect(abandoned).To(Equal([]Closed{{ID: 3}, {ID: 2}}))
		Expect(tracker.Depth(1)).To(Equal(0))
		Expect(collector.anomalies).To(Equal([]Anomaly{
			{Kind: AnomalyAbandoned, Thread: 1, ID: 3},
			{Kind: AnomalyAbandoned, Thread: 1, ID: 2},
		}))
	})

	It("should leave the stack alone on unmatched returns", func() {
		clock.EXPECT().Now().Return(time.Duration(0)).AnyTimes()

		tracker.OnCall(1, 1)

		_, _, found := tracker.OnReturn(1, 7)

		Expect(found).To(BeFalse())
		Expect(tracker.Open(1)).To(Equal([]idgen.ID{1}))
		Expect(collector.anomalies).To(Equal([]Anomaly{
			{Kind: AnomalyUnmatchedReturn, Thread: 1, ID: 7},
		}))
	})

	It("should clamp negative elapsed time", func() {
		gomock.InOrder(
			clock.EXPECT().Now().Return(5*time.Second),
			clock.EXPECT().Now().Return(3*time.Second),
		)

		tracker.OnCall(1, 1)
		elapsed, _, found := tracker.OnReturn(1, 1)

		Expect(found).To(BeTrue())
		Expect(elapsed).To(BeZero())
		Expect(collector.anomalies).To(Equal([]Anomaly{
			{Kind: AnomalyNegativeElapsed, Thread: 1, ID: 1},
		}))
	})

	It("should forget open calls on reset", func() {
		clock.EXPECT().Now().Return(time.Duration(0)).AnyTimes()

		tracker.OnCall(1, 1)
		tracker.Reset()

		Expect(tracker.Depth(1)).To(Equal(0))
		Expect(tracker.Threads()).To(BeEmpty())
	})

	It("should be safe for concurrent threads", func() {
		clock.EXPECT().Now().Return(time.Duration(0)).AnyTimes()

		var wg sync.WaitGroup
		for thread := 1; thread <= 8; thread++ {
			wg.Add(1)

			go func(thread event.ThreadID) {
				defer GinkgoRecover()
				defer wg.Done()

				for i := 0; i < 100; i++ {
					id := idgen.ID(int(thread)*1000 + i)
					tracker.OnCall(thread, id)
					_, _, found := tracker.OnReturn(thread, id)
					Expect(found).To(BeTrue())
				}
			}(event.ThreadID(thread))
		}
		wg.Wait()

		Expect(tracker.Threads()).To(BeEmpty())
		Expect(collector.anomalies).To(BeEmpty())
	})
})
