package chunker

import "strings"

type headerLevel struct {
	marker string
	key    string
}

// Longest marker first so "##" is not read as "#".
var headerLevels = []headerLevel{
	{"####", "Header 4"},
	{"###", "Header 3"},
	{"##", "Header 2"},
	{"#", "Header 1"},
}

type section struct {
	content string
	headers map[string]string
}

// splitMarkdownSections cuts text at H1-H4 header lines. Each section starts
// with its own header line and also carries the active header path. Lines
// inside fenced code blocks are never treated as headers.
func splitMarkdownSections(text string) []section {
	var (
		sections []section
		lines    []string
		active   = map[string]string{}
		inFence  bool
		fence    string
	)

	flush := func() {
		content := strings.TrimSpace(strings.Join(lines, "\n"))
		lines = lines[:0]
		if content == "" {
			return
		}
		headers := make(map[string]string, len(active))
		for k, v := range active {
			headers[k] = v
		}
		sections = append(sections, section{content: content, headers: headers})
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if !inFence && (strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~")) {
			inFence = true
			fence = trimmed[:3]
			lines = append(lines, line)
			continue
		}
		if inFence {
			if strings.HasPrefix(trimmed, fence) {
				inFence = false
			}
			lines = append(lines, line)
			continue
		}

		if lvl, title, ok := parseHeader(trimmed); ok {
			flush()
			depth := len(lvl.marker)
			for _, h := range headerLevels {
				if len(h.marker) >= depth {
					delete(active, h.key)
				}
			}
			active[lvl.key] = title
		}
		lines = append(lines, line)
	}
	flush()
	return sections
}

func parseHeader(line string) (headerLevel, string, bool) {
	for _, h := range headerLevels {
		if !strings.HasPrefix(line, h.marker) {
			continue
		}
		rest := line[len(h.marker):]
		if rest == "" {
			return h, "", true
		}
		if rest[0] != ' ' && rest[0] != '\t' {
			// "#####" or "#tag" are not H1-H4 headers
			return headerLevel{}, "", false
		}
		return h, strings.TrimSpace(rest), true
	}
	return headerLevel{}, "", false
}
