package legacy

import (
	"fmt"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/atom"
)

var (
	mdConverter     *converter.Converter
	mdConverterOnce sync.Once
)

func markdownConverter() *converter.Converter {
	mdConverterOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
				strikethrough.NewStrikethroughPlugin(),
			),
		)
	})
	return mdConverter
}

// keptAttributes survive normalization; everything else is presentation
var keptAttributes = map[string]bool{
	"href":    true,
	"src":     true,
	"alt":     true,
	"colspan": true,
	"rowspan": true,
}

// renamedTags maps presentational tags to their semantic equivalents
var renamedTags = map[string]string{
	"b":      "strong",
	"i":      "em",
	"s":      "del",
	"strike": "del",
}

// Reduce normalizes converted office HTML and reduces it to Markdown.
// Scripts and styles are dropped, wrapper tags are unwrapped and only
// structural attributes are kept.
func Reduce(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse converted html: %w", err)
	}

	doc.Find("script, style, head, meta, link").Remove()

	doc.Find("span, font").Each(func(_ int, s *goquery.Selection) {
		if s.Contents().Length() == 0 {
			s.Remove()
			return
		}
		s.Contents().Unwrap()
	})

	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if renamed, ok := renamedTags[node.Data]; ok {
			node.Data = renamed
			node.DataAtom = atom.Lookup([]byte(renamed))
		}

		kept := node.Attr[:0]
		for _, a := range node.Attr {
			if keptAttributes[a.Key] {
				kept = append(kept, a)
			}
		}
		node.Attr = kept
	})

	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("serialize normalized html: %w", err)
	}

	markdown, err := markdownConverter().ConvertString(body)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return strings.TrimSpace(markdown) + "\n", nil
}
