package render

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/kfreiman/feishuingest/internal/feishu"
)

type blockHandler func(st *state, b feishu.Block) string

// handlers maps every known block kind to its renderer
var handlers = map[feishu.BlockKind]blockHandler{
	feishu.BlockUnknown:        renderUnknown,
	feishu.BlockPage:           renderPage,
	feishu.BlockText:           renderText,
	feishu.BlockHeading:        renderHeading,
	feishu.BlockBullet:         renderListItem,
	feishu.BlockOrdered:        renderListItem,
	feishu.BlockCode:           renderCode,
	feishu.BlockQuote:          renderQuote,
	feishu.BlockTodo:           renderTodo,
	feishu.BlockCallout:        renderCallout,
	feishu.BlockToggle:         renderToggle,
	feishu.BlockDivider:        renderDivider,
	feishu.BlockFile:           renderFile,
	feishu.BlockImage:          renderImage,
	feishu.BlockGrid:           renderGrid,
	feishu.BlockGridColumn:     renderStructural,
	feishu.BlockTable:          renderTable,
	feishu.BlockTableCell:      renderStructural,
	feishu.BlockBitable:        renderTable,
	feishu.BlockQuoteContainer: renderStructural,
	feishu.BlockEmbed:          renderStructural,
}

const (
	maxImageWidth  = 800
	maxImageHeight = 600
)

// Page blocks carry the document title, which is emitted separately
func renderPage(_ *state, _ feishu.Block) string {
	return ""
}

func renderText(st *state, b feishu.Block) string {
	st.stats.TextBlocks++
	return "<p>" + renderRuns(b.Runs) + "</p>"
}

func renderHeading(st *state, b feishu.Block) string {
	st.stats.Headings++
	level := b.Level
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return fmt.Sprintf("<h%d>%s</h%d>", level, renderRuns(b.Runs), level)
}

func renderListItem(_ *state, b feishu.Block) string {
	return "<li>" + renderRuns(b.Runs) + "</li>"
}

func renderCode(st *state, b feishu.Block) string {
	st.stats.CodeBlocks++
	return fmt.Sprintf(`<pre><code class="language-%s">%s</code></pre>`,
		codeLanguage(b.Language), html.EscapeString(b.PlainText()))
}

func renderQuote(st *state, b feishu.Block) string {
	st.stats.TextBlocks++
	return "<blockquote><p>" + renderRuns(b.Runs) + "</p></blockquote>"
}

func renderTodo(st *state, b feishu.Block) string {
	st.stats.TextBlocks++
	checked := ""
	if b.Done {
		checked = " checked"
	}
	return `<p><input type="checkbox" disabled` + checked + "> " + renderRuns(b.Runs) + "</p>"
}

func renderCallout(st *state, b feishu.Block) string {
	st.stats.Callouts++

	body := renderRuns(b.Runs)
	if body == "" {
		if len(b.Children) > 0 {
			body = `<span class="feishu-placeholder">[callout contents are collapsed]</span>`
		}
	}

	return fmt.Sprintf(`<div class="feishu-callout" data-block-id="%s" style="border:1px solid #e5e6eb;border-radius:8px;padding:12px;margin:8px 0;background:%s"><span class="callout-emoji">%s</span> %s</div>`,
		html.EscapeString(b.ID), calloutBackground(b.Background), calloutEmoji(b.Emoji), body)
}

func renderToggle(st *state, b feishu.Block) string {
	st.stats.Toggles++
	title := html.EscapeString(b.PlainText())
	if title == "" {
		title = "Collapsed content"
	}
	return fmt.Sprintf(`<details data-block-id="%s"><summary>%s</summary><div class="feishu-placeholder">[collapsed content]</div></details>`,
		html.EscapeString(b.ID), title)
}

func renderDivider(_ *state, b feishu.Block) string {
	return fmt.Sprintf(`<hr data-block-id="%s">`, html.EscapeString(b.ID))
}

func renderGrid(st *state, b feishu.Block) string {
	st.stats.Grids++
	return placeholder(b.Kind.String(), b.ID, "grid layout")
}

func renderTable(st *state, b feishu.Block) string {
	st.stats.Tables++
	return placeholder(b.Kind.String(), b.ID, b.Kind.String()+" block")
}

func renderStructural(_ *state, b feishu.Block) string {
	return placeholder(b.Kind.String(), b.ID, strings.ReplaceAll(b.Kind.String(), "_", " ")+" block")
}

func renderUnknown(st *state, b feishu.Block) string {
	st.stats.Unknown++
	return placeholder(feishu.BlockUnknown.String(), b.ID, fmt.Sprintf("unsupported block type %d", b.RawType))
}

func renderImage(st *state, b feishu.Block) string {
	st.stats.Images++

	res, ok := st.assets[b.ID]
	if !ok || !res.OK() {
		st.stats.Errors++
		return errorPlaceholder(b.Kind.String(), b.ID, "image unavailable: "+failureReason(res.Err))
	}

	var size string
	if b.Image != nil {
		if w, h := fitImage(b.Image.Width, b.Image.Height); w > 0 && h > 0 {
			size = fmt.Sprintf(` width="%d" height="%d"`, w, h)
		}
	}

	return fmt.Sprintf(`<div class="feishu-image"><img src="%s" alt="image" style="max-width:100%%;height:auto" loading="lazy"%s></div>`,
		html.EscapeString(res.URL), size)
}

func renderFile(st *state, b feishu.Block) string {
	st.stats.Files++

	name := "attachment"
	if b.File != nil && b.File.Name != "" {
		name = b.File.Name
	}

	res, ok := st.assets[b.ID]
	if !ok || !res.OK() {
		st.stats.Errors++
		return errorPlaceholder(b.Kind.String(), b.ID, fmt.Sprintf("file %s unavailable: %s", name, failureReason(res.Err)))
	}

	return fmt.Sprintf(`<div class="feishu-file"><a href="%s" target="_blank" rel="noopener">📎 %s</a></div>`,
		html.EscapeString(res.URL), html.EscapeString(name))
}

func failureReason(err error) string {
	if err == nil {
		return "no resolver"
	}
	return err.Error()
}

// fitImage scales dimensions down proportionally to the display bounds
func fitImage(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	if width > maxImageWidth {
		height = height * maxImageWidth / width
		width = maxImageWidth
	}
	if height > maxImageHeight {
		width = width * maxImageHeight / height
		height = maxImageHeight
	}
	return width, height
}

var calloutEmojis = map[string]string{
	"bulb":               "💡",
	"warning":            "⚠️",
	"star":               "⭐",
	"white_check_mark":   "✅",
	"x":                  "❌",
	"memo":               "📝",
	"pushpin":            "📌",
	"fire":               "🔥",
	"exclamation":        "❗",
	"information_source": "ℹ️",
	"question":           "❓",
	"rocket":             "🚀",
}

func calloutEmoji(id string) string {
	if glyph, ok := calloutEmojis[id]; ok {
		return glyph
	}
	// Some payloads carry the glyph itself
	if id != "" && !isASCII(id) {
		return html.EscapeString(id)
	}
	return "💡"
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

var calloutBackgrounds = map[int]string{
	1: "#fef1f1", // light red
	2: "#fff5eb", // light orange
	3: "#fefff0", // light yellow
	4: "#f0fbef", // light green
	5: "#f0f4ff", // light blue
	6: "#f6f1fe", // light purple
	7: "#f5f6f7", // light gray
}

func calloutBackground(color int) string {
	if bg, ok := calloutBackgrounds[color]; ok {
		return bg
	}
	return "#f0f7ff"
}

var codeLanguages = map[int]string{
	1:  "plaintext",
	7:  "bash",
	8:  "csharp",
	9:  "cpp",
	10: "c",
	12: "css",
	15: "dart",
	18: "dockerfile",
	22: "go",
	24: "html",
	28: "json",
	29: "java",
	30: "javascript",
	32: "kotlin",
	36: "lua",
	38: "makefile",
	39: "markdown",
	40: "nginx",
	41: "objectivec",
	43: "php",
	44: "perl",
	46: "powershell",
	48: "protobuf",
	49: "python",
	50: "r",
	52: "ruby",
	53: "rust",
	55: "scss",
	56: "sql",
	57: "scala",
	60: "shell",
	61: "swift",
	63: "typescript",
	66: "xml",
	67: "yaml",
	68: "cmake",
	69: "diff",
	71: "graphql",
	75: "toml",
}

func codeLanguage(code int) string {
	if lang, ok := codeLanguages[code]; ok {
		return lang
	}
	return "plaintext"
}
