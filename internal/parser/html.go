package parser

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
}

var blockElements = map[atom.Atom]bool{
	atom.Title: true,
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Table: true, atom.Tr: true,
	atom.Pre: true, atom.Blockquote: true, atom.Br: true, atom.Hr: true,
	atom.Header: true, atom.Footer: true, atom.Main: true, atom.Nav: true, atom.Aside: true,
	atom.Body: true, atom.Html: true,
}

func extractHTML(locator string) (*Extraction, error) {
	raw, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrExtractionFailed, locator, err)
	}
	out, err := htmlText(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrExtractionFailed, locator, err)
	}
	out.HTML = string(raw)
	return out, nil
}

// htmlText strips markup and returns visible text, one block per paragraph.
// The parser restores omitted head and body tags, so only script-like
// subtrees are dropped.
func htmlText(raw []byte) (*Extraction, error) {
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var (
		blocks  []string
		current strings.Builder
	)
	flush := func() {
		text := strings.Join(strings.Fields(current.String()), " ")
		if text != "" {
			blocks = append(blocks, text)
		}
		current.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			current.WriteString(" ")
			current.WriteString(n.Data)
			return
		case html.ElementNode:
			if skippedElements[n.DataAtom] {
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(root)
	flush()

	units := make([]UnitOutcome, len(blocks))
	for i := range blocks {
		units[i] = UnitOutcome{Index: i, Kind: UnitBlock}
	}
	return &Extraction{Text: joinUnits(blocks), Units: units}, nil
}

// HasImages reports whether the markup contains an img element.
func HasImages(markup string) bool {
	return strings.Contains(strings.ToLower(markup), "<img")
}
