package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("HookableBase", func() {
	var (
		mockCtrl *gomock.Controller
		hookable *HookableBase
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		hookable = NewHookableBase()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should invoke hooks in registration order", func() {
		first := NewMockHook(mockCtrl)
		second := NewMockHook(mockCtrl)
		ctx := HookCtx{Domain: hookable, Pos: HookPosEventRecorded, Item: 1}

		gomock.InOrder(
			first.EXPECT().Func(ctx),
			second.EXPECT().Func(ctx),
		)

		hookable.AcceptHook(first)
		hookable.AcceptHook(second)
		hookable.InvokeHook(ctx)

		Expect(hookable.NumHooks()).To(Equal(2))
	})

	It("should panic on duplicated hooks", func() {
		hook := NewMockHook(mockCtrl)
		hookable.AcceptHook(hook)

		Expect(func() { hookable.AcceptHook(hook) }).To(Panic())
	})

	It("should accept function hooks", func() {
		var got []any
		hookable.AcceptHook(HookFunc(func(ctx HookCtx) {
			got = append(got, ctx.Item)
		}))

		hookable.InvokeHook(HookCtx{Pos: HookPosAnomaly, Item: "x"})

		Expect(got).To(Equal([]any{"x"}))
	})

	It("should return a copy of the hook list", func() {
		hookable.AcceptHook(NewMockHook(mockCtrl))

		hooks := hookable.Hooks()
		hooks[0] = nil

		Expect(hookable.Hooks()[0]).NotTo(BeNil())
	})
})
