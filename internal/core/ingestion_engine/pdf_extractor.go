package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/core"
)

// PdftotextExtractor shells out to poppler's pdftotext with -layout and
// splits its output on form feeds.
type PdftotextExtractor struct {
	binary   string
	timeout  time.Duration
	maxBytes int64
}

func NewPdftotextExtractor(binary string, timeout time.Duration, maxBytes int64) *PdftotextExtractor {
	if binary == "" {
		binary = "pdftotext"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &PdftotextExtractor{binary: binary, timeout: timeout, maxBytes: maxBytes}
}

func (e *PdftotextExtractor) Extract(ctx context.Context, data []byte, _, _ string) ([]string, error) {
	tmpDir, err := os.MkdirTemp("", "docsift-")
	if err != nil {
		return nil, core.Errorf(core.ErrExtractionFailed, "create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			applog.Warn("temp dir cleanup failed", "dir", tmpDir, "error", err)
		}
	}()

	pdfPath := filepath.Join(tmpDir, "doc.pdf")
	txtPath := filepath.Join(tmpDir, "out.txt")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, core.Errorf(core.ErrExtractionFailed, "write pdf: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.binary, "-layout", pdfPath, txtPath)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, core.Errorf(core.ErrExtractionFailed, "pdftotext timed out after %s", e.timeout)
		}
		return nil, core.Errorf(core.ErrExtractionFailed, "pdftotext failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(txtPath)
	if err != nil {
		return nil, core.Errorf(core.ErrExtractionFailed, "pdftotext output: %w", err)
	}
	if info.Size() > e.maxBytes {
		return nil, core.Errorf(core.ErrExtractionFailed, "pdftotext output is %d bytes, limit %d", info.Size(), e.maxBytes)
	}

	txt, err := os.ReadFile(txtPath)
	if err != nil {
		return nil, core.Errorf(core.ErrExtractionFailed, "read pdftotext output: %w", err)
	}
	return splitPages(string(txt)), nil
}

// splitPages splits on form feed, trims each page and drops blanks. With no
// non-blank page the whole trimmed text is the single page.
func splitPages(txt string) []string {
	var pages []string
	for _, p := range strings.Split(txt, "\f") {
		if p = strings.TrimSpace(p); p != "" {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		return []string{strings.TrimSpace(txt)}
	}
	return pages
}

// NativePDFExtractor reads page text in-process with ledongthuc/pdf.
// Layout fidelity is lower than pdftotext but no external binary is needed.
type NativePDFExtractor struct{}

func (NativePDFExtractor) Extract(ctx context.Context, data []byte, _, _ string) (pages []string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, core.Errorf(core.ErrExtractionFailed, "parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, core.Errorf(core.ErrExtractionFailed, "parse pdf: %w", err)
	}

	var raw []string
	for n := 1; n <= reader.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, core.Errorf(core.ErrExtractionFailed, "parse pdf: %w", err)
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, core.Errorf(core.ErrExtractionFailed, "page %d: %w", n, err)
		}
		raw = append(raw, text)
	}
	return splitPages(strings.Join(raw, "\f")), nil
}

var (
	_ core.TextExtractor = (*PdftotextExtractor)(nil)
	_ core.TextExtractor = NativePDFExtractor{}
	_ core.TextExtractor = (*DocconvExtractor)(nil)
	_ core.TextExtractor = TextDecoder{}
)

// NewPDFExtractor returns the extractor named by kind: "native" or "pdftotext".
func NewPDFExtractor(kind, binary string, timeout time.Duration, maxBytes int64) (core.TextExtractor, error) {
	switch kind {
	case "", "pdftotext":
		return NewPdftotextExtractor(binary, timeout, maxBytes), nil
	case "native":
		return NativePDFExtractor{}, nil
	default:
		return nil, fmt.Errorf("unknown PDF extractor %q", kind)
	}
}
