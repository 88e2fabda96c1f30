package stub

import "fmt"

// Convention describes how a callback-style method signals its result.
type Convention int

const (
	// None methods are not promisified.
	None Convention = iota
	// Normal callbacks are called as (err, result); a non-null err rejects.
	Normal
	// NoError callbacks are called as (result) and never signal failure.
	NoError
)

func (c Convention) String() string {
	switch c {
	case Normal:
		return "normal"
	case NoError:
		return "no-error"
	case None:
		return "none"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// ParseConvention parses the textual convention names.
func ParseConvention(s string) (Convention, error) {
	switch s {
	case "normal":
		return Normal, nil
	case "no-error":
		return NoError, nil
	case "none", "":
		return None, nil
	default:
		return None, fmt.Errorf("unknown convention %q", s)
	}
}

// Table maps method names to their signaling convention.
type Table map[string]Convention
