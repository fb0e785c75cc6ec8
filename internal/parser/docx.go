package parser

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

func extractDocx(locator string) (*Extraction, error) {
	zr, err := zip.OpenReader(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: open docx %s: %v", ErrExtractionFailed, locator, err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open document.xml: %v", ErrExtractionFailed, err)
		}
		defer rc.Close()
		return parseDocumentXML(rc)
	}
	return nil, fmt.Errorf("%w: %s has no word/document.xml", ErrExtractionFailed, locator)
}

// parseDocumentXML walks w:p elements, including those nested in tables.
// Text boxes nest a w:p inside another; each open paragraph keeps its own
// buffer and the inner one is emitted first.
func parseDocumentXML(r io.Reader) (*Extraction, error) {
	dec := xml.NewDecoder(r)
	out := &Extraction{}

	var (
		paragraphs []string
		open       []*strings.Builder
		inText     bool
		index      int
	)
	current := func() *strings.Builder {
		if len(open) == 0 {
			return nil
		}
		return open[len(open)-1]
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decode document.xml: %v", ErrExtractionFailed, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				open = append(open, &strings.Builder{})
			case "t":
				inText = true
			case "tab":
				if b := current(); b != nil {
					b.WriteByte('\t')
				}
			case "br", "cr":
				if b := current(); b != nil {
					b.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b := current()
				if b == nil {
					continue
				}
				open = open[:len(open)-1]
				text := strings.TrimSpace(b.String())
				unit := UnitOutcome{Index: index, Kind: UnitParagraph}
				if text == "" {
					unit.Skipped = true
					unit.Reason = "no text"
				} else {
					paragraphs = append(paragraphs, text)
				}
				out.Units = append(out.Units, unit)
				index++
			}
		case xml.CharData:
			if b := current(); b != nil && inText {
				b.Write(t)
			}
		}
	}

	out.Text = joinUnits(paragraphs)
	return out, nil
}
