// Package pdf turns uploaded documents into plain text for normalization.
package pdf

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	apperrors "resumatch/internal/errors"
	"resumatch/internal/types"
)

// Decoder extracts text from one raw document. Failures are terminal and
// carry the DECODE_ERROR code; callers must not retry or cache them.
type Decoder interface {
	Decode(ctx context.Context, doc types.RawDocument) (string, error)
}

var pdfMagic = []byte("%PDF-")

// IsPDF sniffs the document header. Content types from clients lie often
// enough that the magic bytes are authoritative.
func IsPDF(doc types.RawDocument) bool {
	return bytes.HasPrefix(doc.Bytes, pdfMagic)
}

// PlainTextDecoder passes through documents that already are text. Invalid
// UTF-8 is a decode failure, not something to repair here.
type PlainTextDecoder struct{}

func (PlainTextDecoder) Decode(_ context.Context, doc types.RawDocument) (string, error) {
	if len(doc.Bytes) == 0 {
		return "", apperrors.NewDecodeError("document is empty", nil)
	}
	if !utf8.Valid(doc.Bytes) {
		return "", apperrors.NewDecodeError("document is not valid UTF-8 text", nil)
	}
	return string(doc.Bytes), nil
}

// AutoDecoder routes documents to the PDF decoder or the plain-text decoder
// based on the sniffed format.
type AutoDecoder struct {
	pdf  Decoder
	text Decoder
}

func NewAutoDecoder(pdfDecoder Decoder) *AutoDecoder {
	return &AutoDecoder{pdf: pdfDecoder, text: PlainTextDecoder{}}
}

func (d *AutoDecoder) Decode(ctx context.Context, doc types.RawDocument) (string, error) {
	if IsPDF(doc) {
		return d.pdf.Decode(ctx, doc)
	}
	if strings.HasPrefix(doc.ContentType, "application/pdf") {
		// Claimed PDF without the magic bytes is corrupt, not text.
		return "", apperrors.NewDecodeError("document claims application/pdf but has no PDF header", nil)
	}
	return d.text.Decode(ctx, doc)
}
