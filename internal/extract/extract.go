// Package extract turns uploaded statement files into raw text for the parser.
package extract

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MinTextChars is the minimum amount of extracted text that counts as a
// readable statement. Below this we assume the file is a scanned image.
const MinTextChars = 50

// ErrNoText means the document yielded no usable text. This is fatal for
// the audit job: OCR would be required and we do not attempt it.
var ErrNoText = errors.New("no text found: document appears to be a scanned image")

// TextExtractor pulls raw text out of an uploaded document. The PDF
// implementation lives behind this interface; plain-text exports use
// PlainText below.
type TextExtractor interface {
	// Extract returns the raw text of the document, or ErrNoText when the
	// document contains too little text to process.
	Extract(data []byte) (string, error)
}

// PlainText extracts text from statements already exported as text or CSV.
type PlainText struct{}

// Extract implements TextExtractor. Binary input is rejected rather than
// passed to the model as garbage.
func (PlainText) Extract(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrNoText
	}
	return Check(string(data))
}

// Check applies the scanned-image guard to already-extracted text: fewer
// than MinTextChars significant characters fails fast with ErrNoText.
func Check(text string) (string, error) {
	if len(strings.TrimSpace(text)) < MinTextChars {
		return "", ErrNoText
	}
	return text, nil
}
