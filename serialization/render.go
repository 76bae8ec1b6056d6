package serialization

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/ikuo/appmap/event"
)

// maxRenderDepth bounds how far the display renderer descends into nested
// values. Deeper values are shown as "...".
const maxRenderDepth = 4

// renderer produces fmt-like renderings of arbitrary values while bounding
// both the output length and the nesting depth, so that cyclic or very large
// structures never cost more than the display cap.
type renderer struct {
	sb       strings.Builder
	budget   int
	denylist *Denylist
}

func newRenderer(maxLen int, denylist *Denylist) *renderer {
	budget := maxLen*4 + 16
	if maxLen <= 0 {
		budget = 1 << 16
	}

	return &renderer{budget: budget, denylist: denylist}
}

func (r *renderer) String() string {
	return r.sb.String()
}

func (r *renderer) full() bool {
	return r.sb.Len() > r.budget
}

func (r *renderer) write(s string) {
	if r.full() {
		return
	}

	r.sb.WriteString(s)
}

func (r *renderer) render(v reflect.Value, depth int) {
	if r.full() {
		return
	}

	if !v.IsValid() {
		r.write("<nil>")
		return
	}

	if isNilable(v.Kind()) && v.IsNil() {
		r.write("<nil>")
		return
	}

	if r.renderSelfDescribing(v) {
		return
	}

	switch v.Kind() {
	case reflect.Bool:
		r.write(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		r.write(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		r.write(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		r.write(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	case reflect.Complex64, reflect.Complex128:
		r.write(fmt.Sprint(v.Complex()))
	case reflect.String:
		r.write(v.String())
	case reflect.Interface:
		r.render(v.Elem(), depth)
	case reflect.Ptr:
		r.renderPtr(v, depth)
	case reflect.Slice, reflect.Array:
		r.renderList(v, depth)
	case reflect.Map:
		r.renderMap(v, depth)
	case reflect.Struct:
		r.renderStruct(v, depth)
	default:
		r.write(fmt.Sprintf("%s(0x%x)", v.Type(), v.Pointer()))
	}
}

func (r *renderer) renderSelfDescribing(v reflect.Value) bool {
	if !v.CanInterface() {
		return false
	}

	switch x := v.Interface().(type) {
	case Describer:
		r.write(x.Display())
	case error:
		r.write(x.Error())
	case fmt.Stringer:
		r.write(x.String())
	default:
		return false
	}

	return true
}

func (r *renderer) renderPtr(v reflect.Value, depth int) {
	elem := v.Elem()
	if depth == 0 && (elem.Kind() == reflect.Struct ||
		elem.Kind() == reflect.Slice ||
		elem.Kind() == reflect.Map) {
		r.write("&")
		r.render(elem, depth)

		return
	}

	r.write(fmt.Sprintf("0x%x", v.Pointer()))
}

func (r *renderer) renderList(v reflect.Value, depth int) {
	if depth >= maxRenderDepth {
		r.write("[...]")
		return
	}

	r.write("[")

	for i := 0; i < v.Len() && !r.full(); i++ {
		if i > 0 {
			r.write(" ")
		}

		r.render(v.Index(i), depth+1)
	}

	r.write("]")
}

func (r *renderer) renderMap(v reflect.Value, depth int) {
	if depth >= maxRenderDepth {
		r.write("map[...]")
		return
	}

	r.write("map[")

	for i, key := range sortedMapKeys(v) {
		if r.full() {
			break
		}

		if i > 0 {
			r.write(" ")
		}

		keyStr := keyString(key)
		r.write(keyStr)
		r.write(":")

		if r.denylist.Matches(keyStr) {
			r.write(event.FilteredValue)
			continue
		}

		r.render(v.MapIndex(key), depth+1)
	}

	r.write("]")
}

func (r *renderer) renderStruct(v reflect.Value, depth int) {
	if depth >= maxRenderDepth {
		r.write("{...}")
		return
	}

	r.write("{")

	t := v.Type()
	for i := 0; i < t.NumField() && !r.full(); i++ {
		if i > 0 {
			r.write(" ")
		}

		field := t.Field(i)
		r.write(field.Name)
		r.write(":")

		if r.denylist.Matches(fieldName(field)) {
			r.write(event.FilteredValue)
			continue
		}

		r.render(v.Field(i), depth+1)
	}

	r.write("}")
}

func isNilable(kind reflect.Kind) bool {
	switch kind {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}

func keyString(key reflect.Value) string {
	r := newRenderer(64, nil)
	r.render(key, maxRenderDepth)

	return r.String()
}

func sortedMapKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	names := make(map[int]string, len(keys))

	for i, k := range keys {
		names[i] = keyString(k)
	}

	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return names[idx[a]] < names[idx[b]]
	})

	sorted := make([]reflect.Value, len(keys))
	for i, j := range idx {
		sorted[i] = keys[j]
	}

	return sorted
}

// fieldName returns the serialized name of a struct field, preferring its
// json tag.
func fieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "" || tag == "-" {
		return field.Name
	}

	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}

	return name
}
