// Package extract turns uploaded file bytes into page-level document text.
package extract

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"pdfchat/internal/domain"
)

var (
	ErrEmptyFile = errors.New("uploaded file is empty")
	ErrNotPDF    = errors.New("uploaded file is not a PDF")
	ErrNoText    = errors.New("no extractable text found in pdf")
)

var pdfMagic = []byte("%PDF-")

// PDF extracts text from PDF bytes, one domain.Page per non-empty page.
type PDF struct{}

func NewPDF() *PDF { return &PDF{} }

// Extract parses data and returns the document. The document ID is derived
// from the content, so the same file always gets the same ID.
func (x *PDF) Extract(name string, data []byte) (doc domain.Document, err error) {
	if len(data) == 0 {
		return domain.Document{}, ErrEmptyFile
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return domain.Document{}, ErrNotPDF
	}
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			doc = domain.Document{}
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Document{}, fmt.Errorf("open pdf: %w", err)
	}

	var pages []domain.Page
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text := Normalize(content)
		if text == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}
	if len(pages) == 0 {
		return domain.Document{}, ErrNoText
	}

	sum := sha1.Sum(data)
	return domain.Document{
		ID:    hex.EncodeToString(sum[:8]),
		Name:  name,
		Pages: pages,
	}, nil
}

// Normalize unifies line endings, trims every line and collapses runs of
// blank lines into one.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	blank := 0
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blank++
			if blank > 1 {
				continue
			}
			b.WriteString("\n")
			continue
		}
		blank = 0
		b.WriteString(trimmed)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
