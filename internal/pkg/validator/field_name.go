package validator

import (
	"reflect"
	"strings"
	"unicode"
)

// fieldName reports a struct field by its JSON name, falling back to the Go
// name in snake_case for input structs that carry no json tags.
func fieldName(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
		return tag
	}
	return snakeCase(f.Name)
}

// snakeCase splits on lower-to-upper and acronym-to-word boundaries, so
// RecipientUserID becomes recipient_user_id and UserIDs becomes user_ids.
func snakeCase(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			// A plural "s" closing an acronym stays attached: IDs, not I_Ds.
			pluralTail := i+2 == len(rs) && rs[i+1] == 's'
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1]) && !pluralTail
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
