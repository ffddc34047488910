// Package textcodec converts entry bodies between display text (literal line
// breaks, emphasis markers) and storage text (escaped line-break markers).
//
// Emphasis expansion is one-way: ToStorage never re-derives `*` markers from
// <b>/<i> markup.
package textcodec

import (
	"html"
	"html/template"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// LineMarker is the storage form of a single line break.
	LineMarker = `\n`
	// ParagraphMarker is the storage form of a blank line.
	ParagraphMarker = LineMarker + LineMarker
)

var (
	strongRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	emphasisRe = regexp.MustCompile(`\*(.*?)\*`)
)

// ToStorage escapes paragraph breaks and then the remaining line breaks.
func ToStorage(display string) string {
	s := strings.ReplaceAll(display, "\n\n", ParagraphMarker)
	return strings.ReplaceAll(s, "\n", LineMarker)
}

// ToDisplay expands break markers and converts emphasis markers into markup.
// Unmatched markers are left as literal characters.
func ToDisplay(storage string) string {
	return emphasize(expandBreaks(storage))
}

func expandBreaks(storage string) string {
	s := strings.ReplaceAll(storage, ParagraphMarker, "\n\n")
	return strings.ReplaceAll(s, LineMarker, "\n")
}

func emphasize(s string) string {
	s = strongRe.ReplaceAllString(s, "<b>$1</b>")
	return emphasisRe.ReplaceAllString(s, "<i>$1</i>")
}

// RenderHTML renders storage text as escaped HTML paragraphs. Emphasis is the
// only markup that survives.
func RenderHTML(storage string) template.HTML {
	text := expandBreaks(storage)
	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		lines := strings.Split(para, "\n")
		for i, line := range lines {
			lines[i] = emphasize(html.EscapeString(line))
		}
		b.WriteString("<p>")
		b.WriteString(strings.Join(lines, "<br>"))
		b.WriteString("</p>\n")
	}
	return template.HTML(b.String())
}

// Excerpt returns a plain-text preview of at most limit runes.
func Excerpt(storage string, limit int) string {
	s := strings.ReplaceAll(storage, ParagraphMarker, " ")
	s = strings.ReplaceAll(s, LineMarker, " ")
	s = strongRe.ReplaceAllString(s, "$1")
	s = emphasisRe.ReplaceAllString(s, "$1")
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:limit]), " ") + "…"
}
