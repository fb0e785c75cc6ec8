package parser

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

func (p *Parser) extractPDF(locator string) (*Extraction, error) {
	f, r, err := pdf.Open(locator)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf %s: %v", ErrExtractionFailed, locator, err)
	}
	defer f.Close()

	out := &Extraction{}
	var pages []string
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		text, err := pageText(r, i)
		unit := UnitOutcome{Index: i - 1, Kind: UnitPage}
		if err != nil {
			unit.Skipped = true
			unit.Reason = err.Error()
			out.Units = append(out.Units, unit)
			continue
		}
		out.Units = append(out.Units, unit)
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	out.Text = joinUnits(pages)
	return out, nil
}

// pageText extracts one page; the pdf library panics on some malformed streams.
func pageText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", num, rec)
		}
	}()

	page := r.Page(num)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d: missing page object", num)
	}
	fonts := make(map[string]*pdf.Font)
	for _, name := range page.Fonts() {
		font := page.Font(name)
		fonts[name] = &font
	}
	return page.GetPlainText(fonts)
}
