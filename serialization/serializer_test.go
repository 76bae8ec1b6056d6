package serialization

import (
	"fmt"
	"strings"
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/ikuo/appmap/event"
	"github.com/ikuo/appmap/hooking"
)

type user struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Age      int
	note     string
}

type money struct {
	cents int
}

type nilStringer struct {
	name string
}

func (n *nilStringer) String() string {
	return n.name
}

var _ = Describe("Serializer", func() {
	var (
		mockCtrl *gomock.Controller
		s        *Serializer
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		s = NewSerializer()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should describe scalars", func() {
		d := s.Describe(12, Context{Name: "n"})

		Expect(d.Name).To(Equal("n"))
		Expect(d.Class).To(Equal("int"))
		Expect(d.Value).To(Equal("12"))
		Expect(d.Size).To(BeNil())
		Expect(d.Properties).To(BeEmpty())
		Expect(d.ObjectID).NotTo(BeZero())
	})

	It("should describe nil", func() {
		d := s.Describe(nil, Context{})

		Expect(d.Class).To(Equal("nil"))
		Expect(d.Value).To(Equal("<nil>"))
		Expect(d.ObjectID).To(BeZero())
	})

	It("should filter sensitive parameters", func() {
		d := s.Describe("secret", Context{Name: "password"})

		Expect(d.Value).To(Equal(event.FilteredValue))
		Expect(d.Class).To(Equal("string"))
		Expect(d.Properties).To(BeNil())
		Expect(d.ObjectID).NotTo(BeZero())
	})

	It("should match sensitive names case-insensitively", func() {
		d := s.Describe(map[string]string{"a": "b"}, Context{Name: "User_PASSWORD"})

		Expect(d.Filtered()).To(BeTrue())
		Expect(d.Properties).To(BeNil())
		Expect(d.Size).To(BeNil())
	})

	It("should filter sensitive members from the display value", func() {
		params := map[string]any{"login": "alice", "password": "secret"}

		d := s.Describe(params, Context{Name: "params"})

		Expect(d.Value).To(Equal("map[login:alice password:[FILTERED]]"))
		Expect(d.Value).NotTo(ContainSubstring("secret"))
		Expect(*d.Size).To(Equal(2))
		Expect(d.Properties).To(Equal([]event.Property{
			{Name: "login", Class: "string"},
			{Name: "password", Class: "string"},
		}))
	})

	It("should size and truncate large containers", func() {
		values := make([]int, 1000)
		for i := range values {
			values[i] = i
		}

		d := s.Describe(values, Context{Name: "values"})

		Expect(*d.Size).To(Equal(1000))
		Expect(utf8.RuneCountInString(d.Value)).To(BeNumerically("<=", MaxValueLength))
		Expect(d.Value).To(HaveSuffix(TruncationMarker))
		Expect(d.Value).To(HavePrefix("[0 1 2 3"))
	})

	It("should honor a configured value cap", func() {
		s.WithMaxValueLength(10)

		d := s.Describe(strings.Repeat("x", 50), Context{})

		Expect(d.Value).To(Equal("xxxxxxx..."))
	})

	It("should list struct members one level deep", func() {
		u := &user{Login: "alice", Password: "secret", Age: 3, note: "n"}

		d := s.Describe(u, Context{Name: "user"})

		Expect(d.Class).To(Equal("*serialization.user"))
		Expect(d.Properties).To(Equal([]event.Property{
			{Name: "login", Class: "string"},
			{Name: "password", Class: "string"},
			{Name: "Age", Class: "int"},
		}))
		Expect(d.Value).To(HavePrefix("&{Login:alice Password:[FILTERED] Age:3"))
	})

	It("should keep pointer identity stable", func() {
		u := &user{Login: "alice"}

		first := s.Describe(u, Context{})
		second := s.Describe(u, Context{})
		other := s.Describe(&user{Login: "alice"}, Context{})

		Expect(first.ObjectID).To(Equal(second.ObjectID))
		Expect(first.ObjectID).NotTo(Equal(other.ObjectID))
	})

	It("should survive cyclic structures", func() {
		m := map[string]any{}
		m["self"] = m

		d := s.Describe(m, Context{})

		Expect(d.Class).To(Equal("map[string]interface {}"))
		Expect(d.Value).To(ContainSubstring("map[self:map[self:"))
		Expect(*d.Size).To(Equal(1))
	})

	It("should render nil stringers without panicking", func() {
		var n *nilStringer

		d := s.Describe(n, Context{})

		Expect(d.Value).To(Equal("<nil>"))
		Expect(d.Class).To(Equal("*serialization.nilStringer"))
	})

	It("should use values that describe themselves", func() {
		describer := NewMockDescriber(mockCtrl)
		describer.EXPECT().TypeName().Return("ActiveRecord::Relation")
		describer.EXPECT().Display().Return("#<Relation>")
		describer.EXPECT().Members().Return([]event.Property{{Name: "id", Class: "Integer"}})

		d := s.Describe(describer, Context{})

		Expect(d.Class).To(Equal("ActiveRecord::Relation"))
		Expect(d.Value).To(Equal("#<Relation>"))
		Expect(d.Properties).To(HaveLen(1))
	})

	It("should degrade when introspection panics", func() {
		describer := NewMockDescriber(mockCtrl)
		describer.EXPECT().TypeName().Return("Broken")
		describer.EXPECT().Display().Do(func() { panic("boom") })

		var anomalies []Anomaly
		s.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			anomalies = append(anomalies, ctx.Item.(Anomaly))
		}))

		d := s.Describe(describer, Context{Name: "arg"})

		Expect(d.Value).To(Equal(UnprintableValue))
		Expect(d.Class).To(Equal("*serialization.MockDescriber"))
		Expect(d.Name).To(Equal("arg"))
		Expect(anomalies).To(HaveLen(1))
		Expect(anomalies[0].Cause).To(Equal("boom"))
	})

	It("should use registered adapters", func() {
		err := s.Registry().Register(money{}, func(v any) Describer {
			return moneyDescriber{v.(money)}
		})
		Expect(err).NotTo(HaveOccurred())

		d := s.Describe(money{cents: 250}, Context{})

		Expect(d.Class).To(Equal("Money"))
		Expect(d.Value).To(Equal("$2.50"))
	})

	It("should reject duplicated adapters", func() {
		adapter := func(v any) Describer { return moneyDescriber{v.(money)} }

		Expect(s.Registry().Register(money{}, adapter)).To(Succeed())
		Expect(s.Registry().Register(money{}, adapter)).To(HaveOccurred())
	})

	It("should tell apart types that share a name", func() {
		Expect(s.Registry().Register(money{}, func(v any) Describer {
			return moneyDescriber{v.(money)}
		})).To(Succeed())

		type money struct{ cents int }

		Expect(s.Registry().Register(money{}, func(any) Describer {
			return moneyDescriber{}
		})).To(Succeed())

		_, found := s.Registry().Lookup(money{})
		Expect(found).To(BeTrue())
		Expect(s.Describe(money{cents: 1}, Context{}).Class).
			To(Equal("Money"))
	})
})

type moneyDescriber struct {
	m money
}

func (d moneyDescriber) TypeName() string { return "Money" }

func (d moneyDescriber) Display() string {
	return fmt.Sprintf("$%d.%02d", d.m.cents/100, d.m.cents%100)
}

func (d moneyDescriber) Members() []event.Property { return nil }

var _ = Describe("Truncate", func() {
	It("should keep short values", func() {
		Expect(Truncate("abc", 5)).To(Equal("abc"))
	})

	It("should count runes, not bytes", func() {
		Expect(Truncate("ééééé", 5)).To(Equal("ééééé"))
		Expect(Truncate("éééééé", 5)).To(Equal("éé..."))
	})

	It("should not truncate without a cap", func() {
		Expect(Truncate("abcdef", 0)).To(Equal("abcdef"))
	})
})

var _ = Describe("Denylist", func() {
	It("should match substrings and regexps", func() {
		d, err := NewDenylist([]string{"secret", "/^ssn$/"})
		Expect(err).NotTo(HaveOccurred())

		Expect(d.Matches("client_secret")).To(BeTrue())
		Expect(d.Matches("SSN")).To(BeTrue())
		Expect(d.Matches("ssn_hint")).To(BeFalse())
		Expect(d.Matches("")).To(BeFalse())
	})

	It("should reject malformed patterns", func() {
		_, err := NewDenylist([]string{"/[/"})
		Expect(err).To(HaveOccurred())

		_, err = NewDenylist([]string{""})
		Expect(err).To(HaveOccurred())
	})

	It("should treat a nil denylist as empty", func() {
		var d *Denylist
		Expect(d.Matches("password")).To(BeFalse())
	})
})

var _ = Describe("DescribeParameters", func() {
	It("should keep order and kinds and redact by name", func() {
		s := NewSerializer()

		params := s.DescribeParameters([]RawParameter{
			{Name: "login", Kind: event.ParamReq, Value: "alice"},
			{Name: "password", Kind: event.ParamKey, Value: "hunter2"},
			{Name: "rest", Kind: event.ParamRest, Value: []int{1, 2}},
		})

		Expect(params).To(HaveLen(3))
		Expect(params[0].Name).To(Equal("login"))
		Expect(params[0].Value).To(Equal("alice"))
		Expect(params[0].Kind).To(Equal(event.ParamReq))
		Expect(params[1].Value).To(Equal(event.FilteredValue))
		Expect(params[1].Kind).To(Equal(event.ParamKey))
		Expect(params[2].Value).To(Equal("[1 2]"))
		Expect(*params[2].Size).To(Equal(2))
	})

	It("should return nil for no parameters", func() {
		Expect(NewSerializer().DescribeParameters(nil)).To(BeNil())
	})
})
