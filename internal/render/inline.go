package render

import (
	"html"
	"regexp"
	"strings"

	"github.com/kfreiman/feishuingest/internal/feishu"
)

// bareURLPattern matches http(s) URLs in raw text; quotes and angle brackets end a URL
var bareURLPattern = regexp.MustCompile("https?://[^\\s<>\"'{}|\\\\^`\\[\\]]+")

// renderRuns renders rich text runs to inline HTML.
// Styles wrap in the order bold, italic, underline, strike, link, so a link is always the outermost tag.
func renderRuns(runs []feishu.TextRun) string {
	var sb strings.Builder
	for _, run := range runs {
		sb.WriteString(renderRun(run))
	}
	return sb.String()
}

func renderRun(run feishu.TextRun) string {
	style := run.Style

	var content string
	switch {
	case style.InlineCode:
		content = "<code>" + html.EscapeString(run.Content) + "</code>"
	case style.Link == "":
		content = autolink(run.Content)
	default:
		content = html.EscapeString(run.Content)
	}
	if style.Bold {
		content = "<strong>" + content + "</strong>"
	}
	if style.Italic {
		content = "<em>" + content + "</em>"
	}
	if style.Underline {
		content = "<u>" + content + "</u>"
	}
	if style.Strike {
		content = "<del>" + content + "</del>"
	}
	if style.Link != "" {
		content = anchor(style.Link, content)
	}
	return content
}

func anchor(href, inner string) string {
	return `<a href="` + html.EscapeString(href) + `" target="_blank" rel="noopener noreferrer">` + inner + `</a>`
}

// autolink escapes raw text and wraps its bare URLs in anchors.
// It is only applied to runs without an explicit link, so it never nests anchors.
func autolink(raw string) string {
	var sb strings.Builder
	last := 0
	for _, loc := range bareURLPattern.FindAllStringIndex(raw, -1) {
		match := raw[loc[0]:loc[1]]
		trimmed := strings.TrimRight(match, ".,!?)")
		if trimmed == "" {
			continue
		}
		sb.WriteString(html.EscapeString(raw[last:loc[0]]))
		sb.WriteString(anchor(trimmed, html.EscapeString(trimmed)))
		last = loc[0] + len(trimmed)
	}
	sb.WriteString(html.EscapeString(raw[last:]))
	return sb.String()
}
