// Package insight carves free-form model output into summary, keyword and
// suggestion sections for study aids. It is a best-effort segmentation with
// bounded guarantees: unparseable input yields empty sections, never an
// error. It is deliberately not a robust parser — the input is whatever the
// model felt like writing.
package insight

import (
	"regexp"
	"strings"
)

type Insight struct {
	Summary     string   `json:"summary"`
	Keywords    []string `json:"keywords"`
	Suggestions []string `json:"suggestions"`
}

var (
	bulletRe           = regexp.MustCompile(`^\s*(?:[-*•–]|\d+[.)])\s+`)
	blankRe            = regexp.MustCompile(`\n\s*\n`)
	keywordHeadings    = []string{"keyword", "key term", "key concept"}
	suggestionHeadings = []string{"suggest", "next step", "practice", "tip", "further reading"}
)

// Segment splits an assistant answer into sections. The first unlabeled
// prose block becomes the summary; bullet blocks under a keyword-ish or
// suggestion-ish heading fill the respective lists.
func Segment(answer string) Insight {
	out := Insight{Keywords: []string{}, Suggestions: []string{}}
	text := strings.ReplaceAll(strings.TrimSpace(answer), "\r\n", "\n")
	if text == "" {
		return out
	}

	for _, block := range blankRe.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		heading := strings.ToLower(lines[0])

		switch {
		case matchesAny(heading, keywordHeadings):
			out.Keywords = append(out.Keywords, items(lines)...)
		case matchesAny(heading, suggestionHeadings):
			out.Suggestions = append(out.Suggestions, items(lines)...)
		case out.Summary == "" && !bulletRe.MatchString(lines[0]):
			if strings.HasPrefix(strings.ToLower(heading), "summary") && len(lines) > 1 {
				out.Summary = strings.TrimSpace(strings.Join(lines[1:], " "))
			} else {
				out.Summary = strings.TrimSpace(strings.TrimPrefix(block, "Summary:"))
			}
		}
	}
	return out
}

func matchesAny(heading string, labels []string) bool {
	for _, l := range labels {
		if strings.Contains(heading, l) {
			return true
		}
	}
	return false
}

// items extracts bullet lines from a block; when the heading line carries an
// inline comma list ("Keywords: a, b, c") that is used instead.
func items(lines []string) []string {
	var out []string
	for _, line := range lines[1:] {
		if bulletRe.MatchString(line) {
			item := strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
			if item != "" {
				out = append(out, item)
			}
		}
	}
	if len(out) > 0 {
		return out
	}
	if _, rest, ok := strings.Cut(lines[0], ":"); ok {
		for _, item := range strings.Split(rest, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
