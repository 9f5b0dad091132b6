package cache

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BindingSerializer turns the parameter bindings of a query into a stable string.
// Equal bindings must always serialize to the same string and distinct bindings
// must not collide, since the output is part of the cache key.
type BindingSerializer interface {
	Serialize(bindings []any) string
}

// defaultBindingSerializer implements BindingSerializer using reflection.
// Every value is prefixed with its kind so that 1 and "1" never collide.
type defaultBindingSerializer struct{}

// NewBindingSerializer creates the default binding serializer.
func NewBindingSerializer() BindingSerializer {
	return defaultBindingSerializer{}
}

// Serialize encodes bindings as a length-prefixed list.
func (s defaultBindingSerializer) Serialize(bindings []any) string {
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		parts[i] = s.value(b)
	}
	return fmt.Sprintf("a[%d]:{%s}", len(parts), strings.Join(parts, ";"))
}

func (s defaultBindingSerializer) value(v any) string {
	if v == nil {
		return "N"
	}

	switch t := v.(type) {
	case string:
		return "s" + strconv.Itoa(len(t)) + ":" + t
	case []byte:
		return "b:" + hex.EncodeToString(t)
	case time.Time:
		return "t:" + t.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return "d:" + t.String()
	case driver.Valuer:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return "N"
		}
		dv, err := t.Value()
		if err != nil {
			return s.jsonFallback(v)
		}
		return "v:" + s.value(dv)
	}

	rv := reflect.ValueOf(v)
	if name := definedName(rv.Type()); name != "" {
		return name + "(" + s.kindValue(v, rv) + ")"
	}
	return s.kindValue(v, rv)
}

// definedName returns the type name of a defined non-struct type such as
// bun.Ident, so it never serializes like its underlying value.
func definedName(rt reflect.Type) string {
	if rt.PkgPath() == "" {
		return ""
	}
	switch rt.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Struct, reflect.Func, reflect.Chan:
		return ""
	}
	return rt.String()
}

func (s defaultBindingSerializer) kindValue(v any, rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "N"
		}
		return s.value(rv.Elem().Interface())
	case reflect.Bool:
		return "B:" + strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "i:" + strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return "u:" + strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return "f:" + strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.String:
		str := rv.String()
		return "s" + strconv.Itoa(len(str)) + ":" + str
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.list("slice", rv)
	case reflect.Array:
		return s.list("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.mapValue(rv)
	case reflect.Struct:
		return s.structValue(rv)
	case reflect.Func, reflect.Chan:
		return fmt.Sprintf("%s:%p", rv.Kind(), v)
	}

	return s.jsonFallback(v)
}

func (s defaultBindingSerializer) list(kind string, rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = s.value(rv.Index(i).Interface())
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, len(parts), strings.Join(parts, ","))
}

// mapValue sorts entries by their serialized key so iteration order never leaks into the key.
func (s defaultBindingSerializer) mapValue(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, s.value(iter.Key().Interface())+"="+s.value(iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s defaultBindingSerializer) structValue(rv reflect.Value) string {
	rt := rv.Type()
	parts := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+s.value(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct %s:{%s}", rt.String(), strings.Join(parts, ","))
}

// jsonFallback handles anything reflection could not classify.
func (s defaultBindingSerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%T:%v", v, v)
	}
	return "json:" + string(data)
}
