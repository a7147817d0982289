package runtime

import "regexp"

// ETagMaxInitialValue just a value, meaningless
const ETagMaxInitialValue int64 = 3294967296

const NameFmt = `[a-zA-Z_][a-zA-Z0-9_]*`

var nameRegexp = regexp.MustCompile("^" + NameFmt + "$")

// IsValidName reports whether s can name a node, module or parameter.
func IsValidName(s string) bool {
	return nameRegexp.MatchString(s)
}
