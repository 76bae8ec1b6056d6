package stats

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/hooking"
	"github.com/ikuo/appmap/idgen"
	"github.com/ikuo/appmap/tracing"
)

func callEvent(id idgen.ID, class, method string) event.Event {
	return event.Event{ID: id, Kind: event.KindCall, DefinedClass: class, MethodID: method}
}

func returnEvent(id, parent idgen.ID, elapsed float64) event.Event {
	return event.Event{ID: id, Kind: event.KindReturn, ParentID: parent, Elapsed: &elapsed}
}

var _ = Describe("Collector", func() {
	It("should add up the time of each function", func() {
		functions := Summarize([]event.Event{
			callEvent(1, "Cart", "Checkout"),
			callEvent(2, "Cart", "Total"),
			returnEvent(3, 2, 0.5),
			callEvent(4, "Cart", "Total"),
			returnEvent(5, 4, 1.5),
			returnEvent(6, 1, 3),
		}, nil)

		Expect(functions).To(Equal([]Function{
			{DefinedClass: "Cart", MethodID: "Checkout", Calls: 1, TotalTime: 3, MaxTime: 3},
			{DefinedClass: "Cart", MethodID: "Total", Calls: 2, TotalTime: 2, MaxTime: 1.5},
		}))
	})

	It("should only count filtered calls", func() {
		c := NewCollector(func(call event.Event) bool {
			return call.MethodID == "Total"
		})

		for _, e := range []event.Event{
			callEvent(1, "Cart", "Checkout"),
			callEvent(2, "Cart", "Total"),
		} {
			c.Observe(e)
		}

		Expect(c.InFlight()).To(Equal(1))

		c.Observe(returnEvent(3, 2, 1))
		c.Observe(returnEvent(4, 1, 2))

		functions := c.Functions()
		Expect(functions).To(HaveLen(1))
		Expect(functions[0].MethodID).To(Equal("Total"))
		Expect(c.InFlight()).To(BeZero())
	})

	It("should count raised errors", func() {
		ret := returnEvent(2, 1, 0)
		ret.Exceptions = []event.Exception{{Class: "*errors.errorString", Message: "boom"}}

		functions := Summarize([]event.Event{callEvent(1, "Cart", "Pay"), ret}, nil)

		Expect(functions).To(HaveLen(1))
		Expect(functions[0].Raised).To(Equal(uint64(1)))
	})

	It("should ignore returns of unknown calls", func() {
		Expect(Summarize([]event.Event{returnEvent(2, 1, 1)}, nil)).To(BeEmpty())
	})

	It("should collect from a tracer", func() {
		d := tracing.MakeBuilder().Build()
		t := d.Trace(true)

		c := NewCollector(nil)
		t.AcceptHook(c)

		id := d.DispatchCall(tracing.CallInfo{ThreadID: 1, DefinedClass: "Cart", MethodID: "Checkout"})
		d.DispatchReturn(id, tracing.ReturnInfo{ThreadID: 1})

		functions := c.Functions()
		Expect(functions).To(HaveLen(1))
		Expect(functions[0].Calls).To(Equal(uint64(1)))
	})

	It("should ignore other hook positions", func() {
		c := NewCollector(nil)
		c.Func(hooking.HookCtx{Pos: &hooking.HookPos{Name: "Other"}, Item: callEvent(1, "A", "b")})

		Expect(c.InFlight()).To(BeZero())
	})
})
