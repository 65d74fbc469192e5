package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/docchat/internal/domain"
)

func TestTextPlain(t *testing.T) {
	got, err := Text([]byte("\ufeffHallo Welt"), "text/plain; charset=utf-8", "notes.txt")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "Hallo Welt" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestTextEmpty(t *testing.T) {
	got, err := Text(nil, MIMEPDF, "a.pdf")
	if err != nil || got != "" {
		t.Fatalf("expected empty text got %q %v", got, err)
	}
}

func TestTextInvalidUTF8(t *testing.T) {
	_, err := Text([]byte{0xff, 0xfe, 0x00, 0x41}, "text/plain", "")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction got %v", err)
	}
}

func TestTextBrokenPDF(t *testing.T) {
	_, err := Text([]byte("%PDF-1.7\nthis is not really a pdf"), "", "manual.pdf")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction got %v", err)
	}
}

func TestTextUnsupportedType(t *testing.T) {
	_, err := Text([]byte{1, 2, 3}, "image/png", "photo.png")
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("expected ErrExtraction got %v", err)
	}
}

func TestDetectType(t *testing.T) {
	cases := []struct {
		data        string
		contentType string
		filename    string
		want        string
	}{
		{"%PDF-1.4", "text/plain", "x.txt", MIMEPDF},
		{"abc", "application/octet-stream", "x.PDF", MIMEPDF},
		{"abc", "", "x.md", MIMEPlain},
		{"abc", "text/markdown", "", "text/markdown"},
	}
	for _, c := range cases {
		if got := DetectType([]byte(c.data), c.contentType, c.filename); got != c.want {
			t.Fatalf("DetectType(%q,%q,%q) = %q want %q", c.data, c.contentType, c.filename, got, c.want)
		}
	}
}

func TestTextHTML(t *testing.T) {
	page := `<html><head><title>t</title><style>p{color:red}</style></head>
<body><h1>Boiler</h1><p>Bleed   &amp; refill</p><script>track()</script><ul><li>one</li><li>two</li></ul></body></html>`
	got, err := Text([]byte(page), "text/html; charset=utf-8", "")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	for _, want := range []string{"Boiler", "Bleed & refill", "one\n", "two"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
	for _, bad := range []string{"<", "track()", "color:red"} {
		if strings.Contains(got, bad) {
			t.Fatalf("unexpected %q in %q", bad, got)
		}
	}
}

func TestDetectTypeHTMLByExtension(t *testing.T) {
	if got := DetectType([]byte("<p>x</p>"), "", "guide.HTM"); got != MIMEHTML {
		t.Fatalf("expected %s got %s", MIMEHTML, got)
	}
}
