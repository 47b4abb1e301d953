package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "resumatch/internal/errors"
	"resumatch/internal/types"
)

// TikaDecoder extracts PDF text through an Apache Tika server's /tika
// endpoint. Tika handles the long tail of malformed producer output far
// better than in-process parsers.
type TikaDecoder struct {
	serverURL          string
	client             *http.Client
	extractAnnotations bool
	maxFileSize        int64
	logger             *apperrors.Logger
}

var _ Decoder = (*TikaDecoder)(nil)

// TikaOption configures a TikaDecoder.
type TikaOption func(*TikaDecoder)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) TikaOption {
	return func(d *TikaDecoder) {
		d.client = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) TikaOption {
	return func(d *TikaDecoder) {
		d.client.Timeout = timeout
	}
}

// WithAnnotations controls extraction of PDF link annotation text.
func WithAnnotations(extract bool) TikaOption {
	return func(d *TikaDecoder) {
		d.extractAnnotations = extract
	}
}

// WithMaxFileSize rejects documents larger than maxBytes before they are sent
// to the server. Zero means no limit.
func WithMaxFileSize(maxBytes int64) TikaOption {
	return func(d *TikaDecoder) {
		d.maxFileSize = maxBytes
	}
}

// NewTikaDecoder builds a decoder against a Tika server such as
// http://localhost:9998.
func NewTikaDecoder(serverURL string, logger *apperrors.Logger, options ...TikaOption) *TikaDecoder {
	decoder := &TikaDecoder{
		serverURL: serverURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		extractAnnotations: true,
		logger:             logger,
	}
	for _, option := range options {
		option(decoder)
	}
	return decoder
}

// Decode sends the document to Tika and returns the extracted plain text.
// Any failure is a terminal DECODE_ERROR; Tika rejects encrypted and
// corrupt documents with a 4xx status.
func (d *TikaDecoder) Decode(ctx context.Context, doc types.RawDocument) (string, error) {
	if len(doc.Bytes) == 0 {
		return "", apperrors.NewDecodeError("document is empty", nil)
	}
	if d.maxFileSize > 0 && int64(len(doc.Bytes)) > d.maxFileSize {
		return "", apperrors.NewDecodeError(
			fmt.Sprintf("document exceeds maximum size of %d bytes", d.maxFileSize), nil)
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, d.serverURL+"/tika", bytes.NewReader(doc.Bytes))
	if err != nil {
		return "", apperrors.NewDecodeError("building tika request failed", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", "text/plain")
	if doc.Filename != "" {
		req.Header.Set("X-Tika-Resource-Name", doc.Filename)
	}
	if !d.extractAnnotations {
		req.Header.Set("X-Tika-PDFExtractAnnotationText", "false")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", apperrors.NewDecodeError("tika server unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.NewDecodeError(
			fmt.Sprintf("tika could not parse document (status %d)", resp.StatusCode), nil)
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewDecodeError("reading tika response failed", err)
	}

	d.logger.Debug("Decoded PDF via tika",
		"filename", doc.Filename,
		"bytes_in", len(doc.Bytes),
		"chars_out", len(textBytes),
		"duration_ms", time.Since(start).Milliseconds())

	return string(textBytes), nil
}
