// Package chunker splits extracted document text into overlapping passages.
package chunker

import (
	"strings"
	"unicode/utf8"

	"enterprise-kb/internal/model"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 100

	MetaChunkIndex = "chunk_index"
)

// separators are tried in order; "" means a hard cut between characters.
var separators = []string{
	"\n\n## ",
	"\n\n### ",
	"\n\n#### ",
	"\n\n",
	"\n",
	". ",
	" ",
	"",
}

type Chunk struct {
	Content  string
	Metadata map[string]any
}

type Chunker struct {
	chunkSize int
	overlap   int
}

type Option func(*Chunker)

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

func (c *Chunker) ChunkSize() int { return c.chunkSize }
func (c *Chunker) Overlap() int   { return c.overlap }

// Split returns the chunks of text in document order. Markdown input is
// first cut into header sections; the header line stays in the content and
// the header path lands in metadata.
func (c *Chunker) Split(text string, format model.SourceType, metadata map[string]any) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []Chunk
	appendChunk := func(content string, headers map[string]string) {
		meta := make(map[string]any, len(metadata)+len(headers)+1)
		for k, v := range metadata {
			meta[k] = v
		}
		for k, v := range headers {
			meta[k] = v
		}
		meta[MetaChunkIndex] = len(out)
		out = append(out, Chunk{Content: content, Metadata: meta})
	}

	if format == model.SourceTypeMarkdown {
		for _, sec := range splitMarkdownSections(text) {
			for _, piece := range c.splitText(sec.content, separators) {
				appendChunk(piece, sec.headers)
			}
		}
		return out
	}

	for _, piece := range c.splitText(text, separators) {
		appendChunk(piece, nil)
	}
	return out
}

// splitText recursively breaks text on the first separator present in it,
// recursing with the remaining separators into pieces that are still too long.
func (c *Chunker) splitText(text string, seps []string) []string {
	separator := seps[len(seps)-1]
	var rest []string
	for i, s := range seps {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = seps[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, s := range splitKeepingSeparator(text, separator) {
		if runeLen(s) < c.chunkSize {
			good = append(good, s)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if t := strings.TrimSpace(s); t != "" {
				final = append(final, t)
			}
			continue
		}
		final = append(final, c.splitText(s, rest)...)
	}
	if len(good) > 0 {
		final = append(final, c.merge(good)...)
	}
	return final
}

// merge packs small splits into windows of at most chunkSize characters,
// carrying up to overlap characters of trailing splits into the next window.
func (c *Chunker) merge(splits []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	emit := func() {
		if t := strings.TrimSpace(strings.Join(current, "")); t != "" {
			docs = append(docs, t)
		}
	}

	for _, s := range splits {
		n := runeLen(s)
		if total+n > c.chunkSize && len(current) > 0 {
			emit()
			for total > c.overlap || (total+n > c.chunkSize && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, s)
		total += n
	}
	if len(current) > 0 {
		emit()
	}
	return docs
}

// splitKeepingSeparator splits on sep and re-attaches it to the start of each
// following piece, so concatenating the result yields the input.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
