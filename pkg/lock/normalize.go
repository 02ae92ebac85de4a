package lock

import "strings"

// Normalize canonicalizes a Python package name per the packaging
// name-normalization rule: lowercase, with any run of the separators
// "-", "_" and "." collapsed to a single "-".
//
// Normalize("Django") == Normalize("django") == "django"
// Normalize("foo_bar.baz") == "foo-bar-baz"
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	separator := false
	for _, r := range strings.ToLower(name) {
		if r == '-' || r == '_' || r == '.' {
			separator = true
			continue
		}
		if separator && b.Len() > 0 {
			b.WriteByte('-')
		}
		separator = false
		b.WriteRune(r)
	}
	return b.String()
}
