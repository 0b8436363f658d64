package legacy

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"code.sajari.com/docconv"
)

const (
	docxMainPart      = "word/document.xml"
	docxStylesPart    = "word/styles.xml"
	docxRelationsPart = "word/_rels/document.xml.rels"
	docxNumberingPart = "word/numbering.xml"
)

// inlineImageTypes are the image types embedded as data URIs
var inlineImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// ConversionError is returned when a docx package cannot be converted
type ConversionError struct {
	Stage string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("docx conversion failed at %s: %v", e.Stage, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Converter turns docx packages into HTML
type Converter struct {
	logger *slog.Logger
}

// NewConverter creates a docx converter
func NewConverter(logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Converter{logger: logger}
}

// DocxToHTML converts the body of a docx package to HTML.
// Paragraph styles become headings, numbered paragraphs become list items,
// and run formatting, hyperlinks and embedded images are kept. When the structured pass finds
// no text, plain text extracted by docconv is used instead.
func (c *Converter) DocxToHTML(docx []byte) (string, error) {
	out, err := c.structured(docx)
	if err == nil && hasContent(out) {
		return out, nil
	}
	if err != nil {
		c.logger.Warn("structured docx conversion failed, using text extraction", "error", err)
	}

	text, _, convErr := docconv.ConvertDocx(bytes.NewReader(docx))
	if convErr != nil {
		if err != nil {
			return "", err
		}
		return "", &ConversionError{Stage: "text extraction", Err: convErr}
	}
	return paragraphsFromText(text), nil
}

func (c *Converter) structured(docx []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(docx), int64(len(docx)))
	if err != nil {
		return "", &ConversionError{Stage: "open package", Err: err}
	}

	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	main, ok := parts[docxMainPart]
	if !ok {
		return "", &ConversionError{Stage: "open package", Err: fmt.Errorf("missing %s", docxMainPart)}
	}
	body, err := readEntry(main)
	if err != nil {
		return "", &ConversionError{Stage: "read document", Err: err}
	}

	w := &docxWalker{
		headings: map[string]int{},
		links:    map[string]string{},
		media:    map[string]string{},
		lists:    map[string]map[string]bool{},
		parts:    parts,
	}
	if f, ok := parts[docxStylesPart]; ok {
		if data, err := readEntry(f); err == nil {
			w.headings = headingStyles(data)
		}
	}
	if f, ok := parts[docxRelationsPart]; ok {
		if data, err := readEntry(f); err == nil {
			w.links, w.media = relationshipTargets(data)
		}
	}
	if f, ok := parts[docxNumberingPart]; ok {
		if data, err := readEntry(f); err == nil {
			w.lists = listFormats(data)
		}
	}

	if err := w.walk(body); err != nil {
		return "", &ConversionError{Stage: "parse document", Err: err}
	}
	return w.out.String(), nil
}

// runStyle is the formatting of one w:r element
type runStyle struct {
	bold, italic, underline, strike bool
}

// docxWalker streams document.xml tokens into HTML
type docxWalker struct {
	headings map[string]int             // style id -> heading level
	links    map[string]string          // relationship id -> hyperlink target
	media    map[string]string          // relationship id -> package part or external url
	lists    map[string]map[string]bool // num id -> level -> ordered
	parts    map[string]*zip.File

	out      strings.Builder
	listOpen string // "ul", "ol" or empty

	inParagraph bool
	style       string
	listItem    bool
	numID       string
	level       string
	imageAlt    string
	paragraph   strings.Builder

	inRun      bool
	inRunProps bool
	inText     bool
	run        runStyle
	runText    strings.Builder
	link       string

	tableDepth int
	table      strings.Builder
	cell       []string
}

func (w *docxWalker) walk(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t)
		case xml.EndElement:
			w.end(t)
		case xml.CharData:
			if w.inText {
				w.runText.Write(t)
			}
		}
	}
	w.closeList()
	return nil
}

func (w *docxWalker) start(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		w.inParagraph = true
		w.style = ""
		w.listItem = false
		w.numID = ""
		w.level = ""
		w.paragraph.Reset()
	case "pStyle":
		w.style = attr(t, "val")
	case "numPr":
		if w.inParagraph && !w.inRun {
			w.listItem = true
		}
	case "numId":
		if w.listItem {
			w.numID = attr(t, "val")
			// numId 0 removes inherited numbering
			w.listItem = w.numID != "0"
		}
	case "ilvl":
		if w.listItem {
			w.level = attr(t, "val")
		}
	case "docPr":
		w.imageAlt = attr(t, "descr")
	case "blip":
		id := attr(t, "embed")
		if id == "" {
			id = attr(t, "link")
		}
		w.image(id)
	case "imagedata":
		w.image(attr(t, "id"))
	case "r":
		w.inRun = true
		w.run = runStyle{}
		w.runText.Reset()
	case "rPr":
		w.inRunProps = w.inRun
	case "b":
		if w.inRunProps {
			w.run.bold = toggleOn(t)
		}
	case "i":
		if w.inRunProps {
			w.run.italic = toggleOn(t)
		}
	case "u":
		if w.inRunProps {
			w.run.underline = attr(t, "val") != "none" && toggleOn(t)
		}
	case "strike", "dstrike":
		if w.inRunProps {
			w.run.strike = toggleOn(t)
		}
	case "t":
		w.inText = w.inRun
	case "tab":
		if w.inRun && !w.inRunProps {
			w.runText.WriteString(" ")
		}
	case "br", "cr":
		if w.inRun {
			w.runText.WriteString("\n")
		}
	case "hyperlink":
		w.link = w.links[attr(t, "id")]
	case "tbl":
		if w.tableDepth == 0 {
			w.closeList()
			w.table.Reset()
			w.table.WriteString("<table>")
		}
		w.tableDepth++
	case "tr":
		if w.tableDepth == 1 {
			w.table.WriteString("<tr>")
		}
	case "tc":
		if w.tableDepth == 1 {
			w.cell = w.cell[:0]
		}
	}
}

func (w *docxWalker) end(t xml.EndElement) {
	switch t.Name.Local {
	case "t":
		w.inText = false
	case "rPr":
		w.inRunProps = false
	case "r":
		w.inRun = false
		w.paragraph.WriteString(w.styledRun())
	case "hyperlink":
		w.link = ""
	case "p":
		w.inParagraph = false
		w.flushParagraph()
	case "tc":
		if w.tableDepth == 1 {
			w.table.WriteString("<td>" + strings.Join(w.cell, "<br>") + "</td>")
		}
	case "tr":
		if w.tableDepth == 1 {
			w.table.WriteString("</tr>")
		}
	case "tbl":
		w.tableDepth--
		if w.tableDepth == 0 {
			w.table.WriteString("</table>")
			w.out.WriteString(w.table.String())
			w.out.WriteString("\n")
		}
	}
}

// image writes an img tag for the media relationship id into the current paragraph
func (w *docxWalker) image(id string) {
	alt := w.imageAlt
	w.imageAlt = ""
	if alt == "" {
		alt = "image"
	}

	src := w.imageSource(id)
	if src == "" {
		return
	}
	w.paragraph.WriteString(`<img src="` + html.EscapeString(src) + `" alt="` + html.EscapeString(alt) + `">`)
}

// imageSource returns a data URI for packaged media or the url of linked media
func (w *docxWalker) imageSource(id string) string {
	target, ok := w.media[id]
	if !ok {
		return ""
	}
	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return target
	}

	f, ok := w.parts[target]
	if !ok {
		return ""
	}
	data, err := readEntry(f)
	if err != nil || len(data) == 0 {
		return ""
	}

	contentType := http.DetectContentType(data)
	if !inlineImageTypes[contentType] {
		contentType = mime.TypeByExtension(strings.ToLower(path.Ext(target)))
	}
	if !inlineImageTypes[contentType] {
		return ""
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (w *docxWalker) styledRun() string {
	text := w.runText.String()
	if text == "" {
		return ""
	}

	content := strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
	if w.run.bold {
		content = "<strong>" + content + "</strong>"
	}
	if w.run.italic {
		content = "<em>" + content + "</em>"
	}
	if w.run.underline {
		content = "<u>" + content + "</u>"
	}
	if w.run.strike {
		content = "<del>" + content + "</del>"
	}
	if w.link != "" {
		content = `<a href="` + html.EscapeString(w.link) + `">` + content + `</a>`
	}
	return content
}

func (w *docxWalker) flushParagraph() {
	content := w.paragraph.String()

	if w.tableDepth > 0 {
		if content != "" {
			w.cell = append(w.cell, content)
		}
		return
	}
	if !hasContent(content) {
		return
	}

	level, heading := w.headings[w.style]
	if w.listItem && !heading {
		tag := w.listTag()
		if w.listOpen != tag {
			w.closeList()
			w.out.WriteString("<" + tag + ">\n")
			w.listOpen = tag
		}
		w.out.WriteString("<li>" + content + "</li>\n")
		return
	}

	w.closeList()
	if heading {
		fmt.Fprintf(&w.out, "<h%d>%s</h%d>\n", level, content, level)
		return
	}
	w.out.WriteString("<p>" + content + "</p>\n")
}

// listTag picks the list element from the numbering definition, bullets by default
func (w *docxWalker) listTag() string {
	level := w.level
	if level == "" {
		level = "0"
	}
	if w.lists[w.numID][level] {
		return "ol"
	}
	return "ul"
}

func (w *docxWalker) closeList() {
	if w.listOpen != "" {
		w.out.WriteString("</" + w.listOpen + ">\n")
		w.listOpen = ""
	}
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// toggleOn reads an OOXML boolean property, where a missing val means true
func toggleOn(t xml.StartElement) bool {
	switch attr(t, "val") {
	case "0", "false", "off":
		return false
	default:
		return true
	}
}

// headingStyles maps paragraph style ids to heading levels using the style names
func headingStyles(data []byte) map[string]int {
	var doc struct {
		Styles []struct {
			ID   string `xml:"styleId,attr"`
			Name struct {
				Val string `xml:"val,attr"`
			} `xml:"name"`
		} `xml:"style"`
	}

	levels := map[string]int{}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return levels
	}

	for _, s := range doc.Styles {
		if level := headingLevel(s.Name.Val); level > 0 {
			levels[s.ID] = level
		}
	}
	return levels
}

func headingLevel(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "title" {
		return 1
	}
	rest, ok := strings.CutPrefix(name, "heading")
	if !ok {
		return 0
	}
	level, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || level < 1 {
		return 0
	}
	return min(level, 6)
}

// relationshipTargets maps relationship ids to hyperlink targets and to image locations.
// Packaged images are returned as part names, linked images as their urls.
func relationshipTargets(data []byte) (links, media map[string]string) {
	var doc struct {
		Relationships []struct {
			ID     string `xml:"Id,attr"`
			Type   string `xml:"Type,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}

	links = map[string]string{}
	media = map[string]string{}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return links, media
	}

	for _, r := range doc.Relationships {
		switch {
		case strings.HasSuffix(r.Type, "/hyperlink"):
			links[r.ID] = r.Target
		case strings.HasSuffix(r.Type, "/image"):
			media[r.ID] = mediaPart(r.Target)
		}
	}
	return links, media
}

// mediaPart resolves a relationship target against the word/ directory
func mediaPart(target string) string {
	lower := strings.ToLower(target)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return target
	}
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("word", target)
}

// listFormats maps numbering ids and levels to whether the list is ordered
func listFormats(data []byte) map[string]map[string]bool {
	var doc struct {
		Abstract []struct {
			ID     string `xml:"abstractNumId,attr"`
			Levels []struct {
				Level  string `xml:"ilvl,attr"`
				Format struct {
					Val string `xml:"val,attr"`
				} `xml:"numFmt"`
			} `xml:"lvl"`
		} `xml:"abstractNum"`
		Nums []struct {
			ID       string `xml:"numId,attr"`
			Abstract struct {
				Val string `xml:"val,attr"`
			} `xml:"abstractNumId"`
		} `xml:"num"`
	}

	lists := map[string]map[string]bool{}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return lists
	}

	ordered := map[string]map[string]bool{}
	for _, a := range doc.Abstract {
		levels := map[string]bool{}
		for _, l := range a.Levels {
			switch l.Format.Val {
			case "", "bullet", "none":
				levels[l.Level] = false
			default:
				levels[l.Level] = true
			}
		}
		ordered[a.ID] = levels
	}
	for _, n := range doc.Nums {
		if levels, ok := ordered[n.Abstract.Val]; ok {
			lists[n.ID] = levels
		}
	}
	return lists
}

func paragraphsFromText(text string) string {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		sb.WriteString("<p>" + html.EscapeString(line) + "</p>\n")
	}
	return sb.String()
}

// hasContent reports whether converted HTML carries text or an image
func hasContent(s string) bool {
	return strings.TrimSpace(stripTags(s)) != "" || strings.Contains(s, "<img ")
}

func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
