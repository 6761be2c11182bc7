package sortmerge

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// InfiniteEnd marks a range that runs to the end of the line.
const InfiniteEnd = math.MaxInt

// FieldRange selects the half-open column range [Begin, End) of a line,
// 0-based internally. The user syntax is 1-based, like the classical sort -k
// grammar.
type FieldRange struct {
	Begin   int
	End     int
	Numeric bool
	Reverse bool
}

// ParseRange parses a key specifier of the form BEGIN(,END)? followed by the
// flags n (numeric) and r (reverse). A bare BEGIN means [BEGIN, BEGIN+1); a
// trailing comma with no END means to the end of the line.
func ParseRange(arg string) (FieldRange, error) {
	var r FieldRange

	begin, rest, ok := consumeInt(arg)
	if !ok {
		return r, errors.Errorf("expected %q to start with a number", arg)
	}
	if begin == 0 {
		return r, errors.New("sort fields start counting from 1")
	}
	r.Begin = begin - 1
	r.End = r.Begin + 1

	if len(rest) > 0 && rest[0] == ',' {
		rest = rest[1:]
		var end int
		if end, rest, ok = consumeInt(rest); ok {
			r.End = end
		} else {
			r.End = InfiniteEnd
		}
	}

	for _, flag := range []byte(rest) {
		switch flag {
		case 'n':
			r.Numeric = true
		case 'r':
			r.Reverse = true
		default:
			return r, errors.Errorf("unknown sort flag %q in %q", string(flag), arg)
		}
	}
	return r, nil
}

func consumeInt(s string) (int, string, bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, s, false
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, s, false
	}
	return n, s[i:], true
}
