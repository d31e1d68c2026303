package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteColumn(t *testing.T) {
	line := "é😀 foo"

	tests := []struct {
		name string
		col  int
		enc  Encoding
		want int
	}{
		{"utf-8 passthrough", 7, UTF8, 7},
		{"utf-8 clamps", 99, UTF8, len(line)},
		{"utf-16 after accent", 1, UTF16, 2},
		{"utf-16 after emoji", 3, UTF16, 6},
		{"utf-16 foo", 4, UTF16, 7},
		{"utf-16 inside surrogate pair", 2, UTF16, 6},
		{"utf-32 after emoji", 2, UTF32, 6},
		{"utf-32 foo", 3, UTF32, 7},
		{"past end", 50, UTF16, len(line)},
		{"negative", -1, UTF16, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ByteColumn(line, tt.col, tt.enc))
		})
	}
}

func TestCharacterColumn(t *testing.T) {
	line := "é😀 foo"
	assert.Equal(t, 4, CharacterColumn(line, 7, UTF16))
	assert.Equal(t, 3, CharacterColumn(line, 7, UTF32))
	assert.Equal(t, 7, CharacterColumn(line, 7, UTF8))
	assert.Equal(t, 7, CharacterColumn(line, 100, UTF16))
	assert.Equal(t, 0, CharacterColumn(line, 0, UTF16))
}

func TestParseEncoding(t *testing.T) {
	assert.Equal(t, UTF8, ParseEncoding("utf-8"))
	assert.Equal(t, UTF32, ParseEncoding("utf-32"))
	assert.Equal(t, UTF16, ParseEncoding("utf-16"))
	assert.Equal(t, UTF16, ParseEncoding(""))
}
