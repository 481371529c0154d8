package schema

import (
	"reflect"
	"strings"
)

// TrimStrings strips leading and trailing whitespace from every settable string field
// reachable from v through structs, pointers, slices and arrays. Map values are left as-is.
func TrimStrings(v any) {
	trimValue(reflect.ValueOf(v))
}

func trimValue(rv reflect.Value) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			trimValue(rv.Elem())
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if !rv.Type().Field(i).IsExported() {
				continue
			}
			trimValue(rv.Field(i))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			trimValue(rv.Index(i))
		}
	case reflect.String:
		if rv.CanSet() {
			rv.SetString(strings.TrimSpace(rv.String()))
		}
	}
}
