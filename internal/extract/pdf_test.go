package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRejectsEmpty(t *testing.T) {
	_, err := NewPDF().Extract("empty.pdf", nil)
	require.ErrorIs(t, err, ErrEmptyFile)
}

func TestExtractRejectsNonPDF(t *testing.T) {
	_, err := NewPDF().Extract("notes.txt", []byte("just some text, not a pdf"))
	require.ErrorIs(t, err, ErrNotPDF)
}

func TestExtractRejectsCorruptPDF(t *testing.T) {
	_, err := NewPDF().Extract("broken.pdf", []byte("%PDF-1.4\nthis is not a real pdf body"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotPDF)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims lines", "  hello  \r\n  world ", "hello\nworld"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"only whitespace", " \n\t\n ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}
