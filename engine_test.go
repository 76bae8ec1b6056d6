package appmap

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ikuo/appmap/artifact"
	"github.com/ikuo/appmap/binding"
	"github.com/ikuo/appmap/classmap"
	"github.com/ikuo/appmap/config"
	"github.com/ikuo/appmap/handler"
	"github.com/ikuo/appmap/recorder"
	"github.com/ikuo/appmap/tracing"
)

var _ = Describe("Engine", func() {
	var (
		dir    string
		cfg    *config.Config
		engine *Engine
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		cfg = &config.Config{
			Name:     "shop",
			Packages: []config.Package{{Path: "example.com/shop", Labels: []string{"shop"}}},
			Labels: []config.LabelRule{
				{Class: "Cart", Method: "Check*", Labels: []string{"checkout"}},
			},
		}
		cfg.Env.OutputDir = filepath.Join(dir, "appmap")

		var err error
		engine, err = New(context.Background(), cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject invalid configurations", func() {
		bad := &config.Config{
			Labels: []config.LabelRule{{Method: "[", Labels: []string{"x"}}},
		}

		_, err := New(context.Background(), bad)
		Expect(err).To(MatchError(config.ErrInvalidSelector))
	})

	It("should write a recording", func() {
		Expect(engine.RegisterFunction("example.com/shop.Cart", "Checkout",
			classmap.Metadata{Location: "cart.go:12"})).To(Succeed())

		rec, err := engine.Start("Cart checkout")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Tracer().IsEnabled()).To(BeTrue())

		d := engine.Dispatcher()
		id := d.DispatchCall(tracing.CallInfo{
			ThreadID:     1,
			DefinedClass: "example.com/shop.Cart",
			MethodID:     "Checkout",
		})
		d.DispatchReturn(id, tracing.ReturnInfo{ThreadID: 1})

		Expect(rec.Stats()).To(HaveLen(1))
		Expect(rec.Stats()[0].MethodID).To(Equal("Checkout"))

		path, err := engine.Stop(rec, artifact.Metadata{TestStatus: artifact.TestSucceeded})
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Base(path)).To(Equal("Cart_checkout.appmap.json"))
		Expect(rec.Tracer().State()).To(Equal(tracing.StateDeleted))

		doc, err := artifact.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Metadata.App).To(Equal("shop"))
		Expect(doc.Metadata.Name).To(Equal("Cart checkout"))
		Expect(doc.Events).To(HaveLen(2))

		fn := classmap.Find(doc.ClassMap, "example.com", "shop", "Cart", "Checkout")
		Expect(fn).NotTo(BeNil())
		Expect(fn.Labels).To(ConsistOf("shop", "checkout"))

		_, err = engine.Stop(rec, artifact.Metadata{})
		Expect(err).To(MatchError(ErrUnknownRecording))
	})

	It("should write open recordings on teardown", func() {
		_, err := engine.Start("first")
		Expect(err).NotTo(HaveOccurred())
		_, err = engine.Start("second")
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Teardown()).To(Succeed())

		entries, err := os.ReadDir(cfg.Env.OutputDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(engine.Dispatcher().IsEnabled()).To(BeFalse())

		Expect(engine.Teardown()).To(Succeed())
	})

	It("should reload label rules", func() {
		Expect(engine.RegisterFunction("example.com/shop.Cart", "Add",
			classmap.Metadata{})).To(Succeed())

		next := *cfg
		next.Name = "store"
		next.Labels = []config.LabelRule{
			{Class: "Cart", Method: "Add", Labels: []string{"cart.mutation"}},
		}
		Expect(engine.Reload(&next)).To(Succeed())
		Expect(engine.Config().Name).To(Equal("store"))

		doc := engine.Document(artifact.Metadata{}, nil)
		fn := classmap.Find(doc.ClassMap, "example.com", "shop", "Cart", "Add")
		Expect(fn).NotTo(BeNil())
		Expect(fn.Labels).To(ContainElement("cart.mutation"))

		broken := *cfg
		broken.Labels = []config.LabelRule{{Method: "[", Labels: []string{"x"}}}
		Expect(engine.Reload(&broken)).To(MatchError(config.ErrInvalidSelector))
		Expect(engine.Config().Name).To(Equal("store"))
	})

	It("should refuse to reset while recording", func() {
		rec, err := engine.Start("busy")
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Reset()).To(MatchError(ErrTracersEnabled))

		engine.Dispatcher().Disable(rec.Tracer())
		Expect(engine.Reset()).To(Succeed())
		Expect(engine.Dispatcher().IDs().Peek()).To(BeZero())
	})

	It("should keep caller definitions out of its namespace", func() {
		rec, err := engine.Start("eval")
		Expect(err).NotTo(HaveOccurred())

		caller := binding.New("ClassMaker")
		snippet := handler.NewSnippet("class Foo; end",
			func(b *binding.Binding) (any, error) {
				return b.DefineType("Foo"), nil
			})

		_, err = engine.Eval(1, caller, snippet)
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.Namespace().Names()).
			To(ConsistOf("Kernel", "Recording", "Dispatcher"))
		_, found := engine.Namespace().Lookup("Foo")
		Expect(found).To(BeFalse())
		_, found = caller.Lookup("Foo")
		Expect(found).To(BeTrue())
		_, found = caller.Lookup("Kernel")
		Expect(found).To(BeFalse())

		kernel, found := engine.Namespace().Lookup("Kernel")
		Expect(found).To(BeTrue())
		Expect(kernel.(*binding.Type).QualifiedName()).To(Equal("appmap::Kernel"))

		_, err = engine.Eval(1, engine.Namespace(), snippet)
		Expect(err).To(MatchError(ErrEngineNamespace))

		Expect(rec.Tracer().Len()).To(Equal(2))
	})

	It("should store events in the recording database", func() {
		recCfg := *cfg
		recCfg.Env.Record = true
		recCfg.Env.Database = filepath.Join(dir, "events")

		e, err := New(context.Background(), &recCfg)
		Expect(err).NotTo(HaveOccurred())

		rec, err := e.Start("stored")
		Expect(err).NotTo(HaveOccurred())

		d := e.Dispatcher()
		id := d.DispatchCall(tracing.CallInfo{ThreadID: 1, DefinedClass: "A", MethodID: "b"})
		d.DispatchReturn(id, tracing.ReturnInfo{ThreadID: 1})

		Expect(e.Teardown()).To(Succeed())

		reader, err := recorder.NewReader(recCfg.Env.Database + ".sqlite3")
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		events, err := reader.Events(context.Background(), rec.Tracer().ID())
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
	})
})
