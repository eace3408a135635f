package errcodes

import "github.com/pkg/errors"

// KindOf returns the taxonomy kind of err, or the empty string when err is
// not an *Error anywhere in its chain.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, kind string) bool {
	return KindOf(err) == kind
}
