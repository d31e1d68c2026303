package index

import (
	"unicode/utf16"
	"unicode/utf8"
)

// Encoding is a language server offset encoding.
type Encoding string

const (
	UTF8  Encoding = "utf-8"
	UTF16 Encoding = "utf-16"
	UTF32 Encoding = "utf-32"
)

// ParseEncoding returns the encoding named by s. Servers that do not
// negotiate an encoding use UTF-16.
func ParseEncoding(s string) Encoding {
	switch s {
	case "utf-8", "utf8":
		return UTF8
	case "utf-32", "utf32":
		return UTF32
	default:
		return UTF16
	}
}

// units returns how many code units r occupies in enc.
func (enc Encoding) units(r rune) int {
	switch enc {
	case UTF8:
		return utf8.RuneLen(r)
	case UTF32:
		return 1
	default:
		if n := utf16.RuneLen(r); n > 0 {
			return n
		}
		return 1
	}
}

// ByteColumn converts a column in enc code units to a byte offset in line.
// Columns past the end of the line clamp to len(line); a column that lands
// inside a multi-unit character resolves to the start of the next character.
func ByteColumn(line string, col int, enc Encoding) int {
	if col <= 0 {
		return 0
	}
	if enc == UTF8 {
		return min(col, len(line))
	}
	units := 0
	for i, r := range line {
		if units >= col {
			return i
		}
		units += enc.units(r)
	}
	return len(line)
}

// CharacterColumn converts a byte offset in line to a column in enc code
// units. It is the inverse of ByteColumn for offsets on character boundaries.
func CharacterColumn(line string, byteCol int, enc Encoding) int {
	if byteCol <= 0 {
		return 0
	}
	if byteCol > len(line) {
		byteCol = len(line)
	}
	if enc == UTF8 {
		return byteCol
	}
	units := 0
	for i, r := range line {
		if i >= byteCol {
			break
		}
		units += enc.units(r)
	}
	return units
}
