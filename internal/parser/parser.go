package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"enterprise-kb/internal/model"
	"enterprise-kb/internal/pkg/logging"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrExtractionFailed  = errors.New("document extraction failed")
)

type UnitKind string

const (
	UnitPage      UnitKind = "page"
	UnitParagraph UnitKind = "paragraph"
	UnitBlock     UnitKind = "block"
	UnitFile      UnitKind = "file"
)

// UnitOutcome reports what happened to one page, paragraph or block.
type UnitOutcome struct {
	Index   int      `json:"index"`
	Kind    UnitKind `json:"kind"`
	Skipped bool     `json:"skipped,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

type Extraction struct {
	Text  string
	Units []UnitOutcome
	// HTML holds the raw markup for html sources, empty otherwise.
	HTML string
}

func (e *Extraction) SkippedUnits() int {
	n := 0
	for _, u := range e.Units {
		if u.Skipped {
			n++
		}
	}
	return n
}

// Report is the JSON-friendly summary stored on the document.
func (e *Extraction) Report() map[string]any {
	skipped := make([]map[string]any, 0)
	for _, u := range e.Units {
		if !u.Skipped {
			continue
		}
		skipped = append(skipped, map[string]any{"index": u.Index, "kind": string(u.Kind), "reason": u.Reason})
	}
	return map[string]any{
		"units":   len(e.Units),
		"skipped": skipped,
	}
}

type Parser struct {
	logger *slog.Logger
}

func New() *Parser {
	return &Parser{logger: logging.NewModuleLogger("ingest", "parser")}
}

// Extract reads the file at locator and returns its plain text.
func (p *Parser) Extract(ctx context.Context, locator string, format model.SourceType) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var extract func(string) (*Extraction, error)
	switch format {
	case model.SourceTypePDF:
		extract = p.extractPDF
	case model.SourceTypeWord:
		extract = extractDocx
	case model.SourceTypeHTML:
		extract = extractHTML
	case model.SourceTypeMarkdown, model.SourceTypeText:
		extract = extractPlain
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	out, err := extract(locator)
	if err != nil {
		return nil, err
	}
	for _, u := range out.Units {
		if u.Skipped {
			p.logger.Warn("extraction unit skipped",
				"locator", locator,
				"kind", u.Kind,
				"index", u.Index,
				"reason", u.Reason,
			)
		}
	}
	return out, nil
}

func extractPlain(locator string) (*Extraction, error) {
	b, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrExtractionFailed, locator, err)
	}
	return &Extraction{
		Text:  string(b),
		Units: []UnitOutcome{{Index: 0, Kind: UnitFile}},
	}, nil
}

func joinUnits(parts []string) string {
	return strings.Join(parts, "\n\n")
}
