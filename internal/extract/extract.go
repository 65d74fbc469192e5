// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/mohammad-safakhou/docchat/internal/domain"
)

const (
	MIMEPDF   = "application/pdf"
	MIMEPlain = "text/plain"
)

var pdfMagic = []byte("%PDF-")

// DetectType resolves the effective media type from the declared content type,
// the file name and the leading bytes, in that order of trust for PDFs.
func DetectType(data []byte, contentType, filename string) string {
	if bytes.HasPrefix(data, pdfMagic) {
		return MIMEPDF
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "" && mt != "application/octet-stream" {
		return mt
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return MIMEPDF
	case ".html", ".htm":
		return MIMEHTML
	}
	return MIMEPlain
}

// Text extracts the plain text of a document. An empty document yields "" with no error.
func Text(data []byte, contentType, filename string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	switch mt := DetectType(data, contentType, filename); {
	case mt == MIMEPDF:
		return pdfText(data)
	case mt == MIMEHTML || mt == "application/xhtml+xml":
		return htmlText(data)
	case strings.HasPrefix(mt, "text/") || mt == "application/json" || mt == "application/xml":
		return plainText(data)
	default:
		return "", fmt.Errorf("%w: unsupported content type %q", domain.ErrExtraction, mt)
	}
}

func plainText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: document is not valid UTF-8 text", domain.ErrExtraction)
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

func pdfText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: malformed pdf: %v", domain.ErrExtraction, r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", domain.ErrExtraction, err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %w", domain.ErrExtraction, err)
	}
	out, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %w", domain.ErrExtraction, err)
	}
	if !utf8.Valid(out) {
		out = bytes.ToValidUTF8(out, nil)
	}
	return string(out), nil
}
