package serialization

import (
	"reflect"

	"github.com/ikuo/appmap/event"
)

// reflectDescriber describes values that neither implement Describer nor have
// a registered adapter.
type reflectDescriber struct {
	v        any
	maxLen   int
	denylist *Denylist
}

func (d reflectDescriber) TypeName() string {
	return className(reflect.ValueOf(d.v))
}

func (d reflectDescriber) Display() string {
	r := newRenderer(d.maxLen, d.denylist)
	r.render(reflect.ValueOf(d.v), 0)

	return r.String()
}

func (d reflectDescriber) Members() []event.Property {
	v := derefOnce(reflect.ValueOf(d.v))

	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() || v.Len() == 0 {
			return nil
		}

		props := make([]event.Property, 0, v.Len())
		for _, key := range sortedMapKeys(v) {
			props = append(props, event.Property{
				Name:  keyString(key),
				Class: className(v.MapIndex(key)),
			})
		}

		return props
	case reflect.Struct:
		t := v.Type()

		var props []event.Property
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}

			props = append(props, event.Property{
				Name:  fieldName(field),
				Class: className(v.Field(i)),
			})
		}

		return props
	default:
		return nil
	}
}

// className names the dynamic type of v.
func className(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}

	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "nil"
		}

		return v.Elem().Type().String()
	}

	return v.Type().String()
}

func derefOnce(v reflect.Value) reflect.Value {
	if v.Kind() == reflect.Ptr && !v.IsNil() {
		return v.Elem()
	}

	return v
}

// sizeOf returns the element count of sized containers.
func sizeOf(v any) (int, bool) {
	rv := derefOnce(reflect.ValueOf(v))

	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
		return rv.Len(), true
	default:
		return 0, false
	}
}

// pointerIdentity returns the address behind pointer-shaped values, or 0.
func pointerIdentity(v any) uint64 {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan,
		reflect.Func, reflect.UnsafePointer:
		return uint64(rv.Pointer())
	default:
		return 0
	}
}
