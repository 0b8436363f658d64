package legacy

import (
	"encoding/base64"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		contains []string
		excludes []string
	}{
		{
			name:     "headings and emphasis",
			html:     `<h2 class="title" style="color:red">Plan</h2><p><b>bold</b> and <i>italic</i></p>`,
			contains: []string{"## Plan", "**bold**", "*italic*"},
			excludes: []string{"color:red", "class="},
		},
		{
			name:     "wrapper tags are unwrapped",
			html:     `<p><span style="font-size:12pt"><font color="blue">inner text</font></span><span></span></p>`,
			contains: []string{"inner text"},
			excludes: []string{"span", "font"},
		},
		{
			name:     "links and images keep their targets",
			html:     `<p><a href="https://example.com" data-x="1">site</a> <img src="https://example.com/a.png" alt="chart" width="10"></p>`,
			contains: []string{"[site](https://example.com)", "![chart](https://example.com/a.png)"},
			excludes: []string{"data-x"},
		},
		{
			name:     "tables keep their cells apart",
			html:     `<table><tr><td>a</td><td>b</td></tr><tr><td>c</td><td>d</td></tr></table>`,
			contains: []string{"| a | b |", "| c | d |"},
			excludes: []string{"abcd", "<table"},
		},
		{
			name:     "strikethrough survives",
			html:     `<p><del>gone</del> and <s>struck</s> <u>under</u></p>`,
			contains: []string{"~~gone~~", "~~struck~~", "under"},
		},
		{
			name:     "scripts are dropped",
			html:     `<p>keep</p><script>alert(1)</script><style>p{}</style>`,
			contains: []string{"keep"},
			excludes: []string{"alert", "p{}"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			markdown, err := Reduce(tt.html)
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, markdown, want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, markdown, unwanted)
			}
		})
	}
}

func TestConverter_DocxToHTML(t *testing.T) {
	converter := NewConverter(slog.New(slog.NewTextHandler(io.Discard, nil)))

	out, err := converter.DocxToHTML(testDocx(t))
	require.NoError(t, err)

	assert.Contains(t, out, "<h1>Quarterly Plan</h1>")
	assert.Contains(t, out, `<p>Plain and <strong>bold</strong> text <a href="https://example.com/more">more</a></p>`)
	assert.Contains(t, out, "<ul>\n<li>first item</li>\n<li>second item</li>\n</ul>")
	assert.Contains(t, out, "<table><tr><td>a &amp; b</td><td>c</td></tr></table>")
	assert.NotContains(t, out, "<p></p>")
}

const mediaRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId9" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image1.png"/>
  <Relationship Id="rId10" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image2.emf"/>
</Relationships>`

const mediaNumbering = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:numbering xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:abstractNum w:abstractNumId="0"><w:lvl w:ilvl="0"><w:numFmt w:val="decimal"/></w:lvl></w:abstractNum>
  <w:abstractNum w:abstractNumId="1"><w:lvl w:ilvl="0"><w:numFmt w:val="bullet"/></w:lvl></w:abstractNum>
  <w:num w:numId="3"><w:abstractNumId w:val="0"/></w:num>
  <w:num w:numId="4"><w:abstractNumId w:val="1"/></w:num>
</w:numbering>`

const mediaDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"
  xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"
  xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
  xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>before</w:t></w:r></w:p>
    <w:p><w:r><w:drawing><wp:inline><wp:docPr id="1" name="Picture 1"/>
      <a:graphic><a:graphicData><a:blip r:embed="rId9"/></a:graphicData></a:graphic>
    </wp:inline></w:drawing></w:r></w:p>
    <w:p><w:r><w:drawing><wp:inline><wp:docPr id="2" name="Picture 2" descr="chart"/>
      <a:graphic><a:graphicData><a:blip r:embed="rId10"/></a:graphicData></a:graphic>
    </wp:inline></w:drawing></w:r></w:p>
    <w:p><w:r><w:t>after</w:t></w:r></w:p>
    <w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="3"/></w:numPr></w:pPr><w:r><w:t>step one</w:t></w:r></w:p>
    <w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="3"/></w:numPr></w:pPr><w:r><w:t>step two</w:t></w:r></w:p>
    <w:p><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="4"/></w:numPr></w:pPr><w:r><w:t>a bullet</w:t></w:r></w:p>
  </w:body>
</w:document>`

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestConverter_DocxMediaAndNumbering(t *testing.T) {
	docx := zipFiles(t, map[string][]byte{
		docxMainPart:            []byte(mediaDocument),
		docxRelationsPart:       []byte(mediaRels),
		docxNumberingPart:       []byte(mediaNumbering),
		"word/media/image1.png": pngBytes,
		"word/media/image2.emf": []byte("not a web image"),
	})

	out, err := NewConverter(nil).DocxToHTML(docx)
	require.NoError(t, err)

	image := `<p><img src="data:image/png;base64,` + base64.StdEncoding.EncodeToString(pngBytes) + `" alt="image"></p>`
	assert.Equal(t, "<p>before</p>\n"+image+"\n<p>after</p>\n"+
		"<ol>\n<li>step one</li>\n<li>step two</li>\n</ol>\n"+
		"<ul>\n<li>a bullet</li>\n</ul>\n", out)

	markdown, err := Reduce(out)
	require.NoError(t, err)
	assert.Contains(t, markdown, "![image](data:image/png;base64,")
	assert.Contains(t, markdown, "1. step one")
}

func TestHeadingLevel(t *testing.T) {
	tests := map[string]int{
		"heading 1": 1,
		"Heading 3": 3,
		"heading 9": 6,
		"Title":     1,
		"Normal":    0,
		"heading":   0,
	}
	for name, want := range tests {
		assert.Equal(t, want, headingLevel(name), name)
	}
}
