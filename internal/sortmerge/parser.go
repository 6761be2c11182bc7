package sortmerge

import (
	"bytes"
	"fmt"
)

// Field is one captured column of a line with the flags inherited from the
// range that captured it.
type Field struct {
	Str     []byte
	Numeric bool
	Reverse bool
}

// OutOfRange reports a line with fewer columns than a finite range demands.
type OutOfRange struct {
	Columns int
	Need    int
}

func (e *OutOfRange) Error() string {
	return fmt.Sprintf("reached end of line after reading %d columns, expected at least %d", e.Columns, e.Need)
}

// LineParser extracts the key fields of a line under a set of ranges. Column
// offsets are remembered while scanning so a later range referring to an
// earlier column is served without re-splitting.
type LineParser struct {
	Ranges    []FieldRange
	Delimiter byte
}

// Parse appends the key fields of line to fields (reusing its backing array)
// and returns the result. The returned fields alias line. A finite range
// beyond the available columns is an OutOfRange error; an infinite range
// silently truncates.
func (p *LineParser) Parse(line []byte, fields []Field) ([]Field, error) {
	fields = fields[:0]

	// offsets[c] is where column c starts; one past the end of the scanned
	// region for the last entry.
	offsets := make([]int, 1, len(p.Ranges)+4)
	begin := 0
	column := 0

	for _, rng := range p.Ranges {
		// Serve columns this range shares with already-scanned ones.
		for c := rng.Begin; c < column && c < rng.End; c++ {
			fields = append(fields, Field{
				Str:     line[offsets[c] : offsets[c+1]-1],
				Numeric: rng.Numeric,
				Reverse: rng.Reverse,
			})
		}

		// Then scan the rest of the line as far as this range needs.
		for ; column < rng.End; column++ {
			if begin >= len(line) {
				if rng.End == InfiniteEnd {
					break
				}
				return fields, &OutOfRange{Columns: column, Need: rng.End}
			}
			end := bytes.IndexByte(line[begin:], p.Delimiter)
			if end < 0 {
				end = len(line)
			} else {
				end += begin
			}
			if column >= rng.Begin {
				fields = append(fields, Field{
					Str:     line[begin:end],
					Numeric: rng.Numeric,
					Reverse: rng.Reverse,
				})
			}
			offsets = append(offsets, end+1)
			begin = end + 1
		}
	}
	return fields, nil
}
