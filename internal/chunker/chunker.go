// Package chunker splits aggregated source text into fixed-size segments.
package chunker

// DefaultSize is the segment length used when callers pass a non-positive size.
const DefaultSize = 3000

// Split cuts text into consecutive, non-overlapping segments of size runes.
// Every segment except possibly the last has exactly size runes, and joining
// the segments reproduces text. An invalid UTF-8 byte counts as one rune and
// is kept as is.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultSize
	}
	if text == "" {
		return nil
	}

	var chunks []string
	start, n := 0, 0
	for i := range text {
		if n == size {
			chunks = append(chunks, text[start:i])
			start, n = i, 0
		}
		n++
	}
	return append(chunks, text[start:])
}

// Count returns the number of text units (runes) in s, the unit Split uses.
// Invalid UTF-8 bytes count one each.
func Count(s string) int64 {
	var n int64
	for range s {
		n++
	}
	return n
}
