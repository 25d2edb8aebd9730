package ingestion_engine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const pageSeparator = "\n\n"

// TextChunk is one window of the cleaned text. Start and End are rune
// offsets into the cleaned text, End exclusive. PageStart and PageEnd are
// 1-based and only set by SplitPages.
type TextChunk struct {
	Index     int
	Start     int
	End       int
	PageStart int
	PageEnd   int
	Content   string
}

// Chunker cuts text into fixed-size overlapping windows measured in runes.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 5000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

// Clean strips null bytes and surrounding whitespace.
func Clean(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
}

// Split cleans text and returns its windows. Empty input yields no chunks.
func (c *Chunker) Split(text string) []TextChunk {
	runes := []rune(Clean(text))
	if len(runes) == 0 {
		return nil
	}

	var out []TextChunk
	for i := 0; ; {
		end := min(i+c.size, len(runes))
		out = append(out, TextChunk{
			Index:   len(out),
			Start:   i,
			End:     end,
			Content: string(runes[i:end]),
		})
		if end == len(runes) {
			break
		}
		i = max(0, end-c.overlap)
	}
	return out
}

// SplitPages joins pages with a blank line, splits the result and tags each
// chunk with the range of pages its window touches.
func (c *Chunker) SplitPages(pages []string) []TextChunk {
	cleaned := make([]string, len(pages))
	for i, p := range pages {
		cleaned[i] = strings.ReplaceAll(p, "\x00", "")
	}
	joined := strings.Join(cleaned, pageSeparator)

	chunks := c.Split(joined)
	if len(chunks) == 0 {
		return nil
	}

	// Offsets of each page inside the cleaned (left-trimmed) text.
	shift := utf8.RuneCountInString(joined) - utf8.RuneCountInString(strings.TrimLeftFunc(joined, unicode.IsSpace))
	sepLen := utf8.RuneCountInString(pageSeparator)
	starts := make([]int, len(cleaned))
	ends := make([]int, len(cleaned))
	off := -shift
	for i, p := range cleaned {
		starts[i] = off
		off += utf8.RuneCountInString(p)
		ends[i] = off
		off += sepLen
	}

	for k := range chunks {
		ch := &chunks[k]
		first, last := 0, 0
		for i := range cleaned {
			if ends[i] <= starts[i] {
				continue
			}
			if first == 0 && ends[i] > ch.Start {
				first = i + 1
			}
			if starts[i] < ch.End {
				last = i + 1
			}
		}
		if first == 0 {
			first = max(1, last)
		}
		if last < first {
			last = first
		}
		ch.PageStart, ch.PageEnd = first, last
	}
	return chunks
}
