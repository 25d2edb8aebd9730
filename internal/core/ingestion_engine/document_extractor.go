package ingestion_engine

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/core"
)

// DocumentExtractor picks an extraction strategy from the media type and the
// title's extension: PDFs go to the configured PDF extractor, binary office
// formats to docconv, everything else (HTML and RTF included) is decoded as
// text into one page.
type DocumentExtractor struct {
	pdf    core.TextExtractor
	office core.TextExtractor
	text   core.TextExtractor
}

var _ core.TextExtractor = (*DocumentExtractor)(nil)

func NewDocumentExtractor(pdf core.TextExtractor) *DocumentExtractor {
	return &DocumentExtractor{
		pdf:    pdf,
		office: NewDocconvExtractor(false),
		text:   TextDecoder{},
	}
}

func (e *DocumentExtractor) Extract(ctx context.Context, data []byte, mimeType, title string) ([]string, error) {
	var (
		strategy = "text"
		ext      = e.text
	)
	switch {
	case isPDF(mimeType, title):
		strategy, ext = "pdf", e.pdf
	case isOffice(mimeType, title):
		strategy, ext = "office", e.office
	}
	applog.Debug("extracting text", "strategy", strategy, "mime_type", mimeType, "bytes", len(data))

	pages, err := ext.Extract(ctx, data, mimeType, title)
	if err != nil {
		return nil, core.Wrap(core.ErrExtractionFailed, err)
	}
	return pages, nil
}

func isPDF(mimeType, title string) bool {
	return strings.Contains(strings.ToLower(mimeType), "pdf") ||
		strings.HasSuffix(strings.ToLower(title), ".pdf")
}

var officeMimeTypes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
}

var officeExtensions = map[string]bool{
	".docx": true, ".pptx": true, ".odt": true,
}

func isOffice(mimeType, title string) bool {
	mt, _, _ := strings.Cut(strings.ToLower(mimeType), ";")
	if officeMimeTypes[strings.TrimSpace(mt)] {
		return true
	}
	return officeExtensions[strings.ToLower(filepath.Ext(title))]
}

// DocconvExtractor converts office documents with sajari/docconv into a single page.
type DocconvExtractor struct {
	useReadability bool
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, mimeType, title string) ([]string, error) {
	mt, _, _ := strings.Cut(mimeType, ";")
	mt = strings.TrimSpace(mt)
	if !officeMimeTypes[strings.ToLower(mt)] {
		mt = docconv.MimeTypeByExtension(title)
	}

	res, err := docconv.Convert(bytes.NewReader(data), mt, e.useReadability)
	if err != nil {
		return nil, core.Errorf(core.ErrExtractionFailed, "docconv %s: %w", mt, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, core.Errorf(core.ErrExtractionFailed, "docconv %s: %w", mt, err)
	}
	return []string{res.Body}, nil
}

// TextDecoder treats the buffer as one page of text. A UTF-8 or UTF-16 BOM
// selects the encoding and is dropped; invalid UTF-8 becomes U+FFFD.
type TextDecoder struct{}

func (TextDecoder) Extract(_ context.Context, data []byte, _, _ string) ([]string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return nil, core.Errorf(core.ErrExtractionFailed, "decode text: %w", err)
	}
	return []string{string(out)}, nil
}
