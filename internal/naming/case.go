// Package naming derives storage names for model types.
package naming

import (
	"reflect"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// ToSnake converts the provided string to snake_case using ASCII-aware rules.
// Punctuation that shows up in reflected type names (pointers, generic
// suffixes) is collapsed into single underscores, since these names end up
// in cache tags and group keys.
func ToSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastUnderscore {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false

		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}

// TableName returns the table a bun model type maps to: the `table:` option
// of an embedded bun.BaseModel tag when present, otherwise the pluralized
// snake_case type name.
func TableName(typ reflect.Type) string {
	for typ.Kind() == reflect.Ptr || typ.Kind() == reflect.Slice {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return ToSnake(typ.Name())
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.Anonymous || field.Type.Name() != "BaseModel" {
			continue
		}
		if name := tableOption(field.Tag.Get("bun")); name != "" {
			return name
		}
	}

	return inflection.Plural(ToSnake(typ.Name()))
}

// tableOption extracts the table name from a tag such as "table:users,alias:u".
func tableOption(tag string) string {
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if name, ok := strings.CutPrefix(part, "table:"); ok {
			return strings.Trim(name, `"`)
		}
	}
	return ""
}
