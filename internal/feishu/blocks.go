package feishu

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// BlockKind is the closed set of block variants the pipeline knows about
type BlockKind int

const (
	BlockUnknown BlockKind = iota
	BlockPage
	BlockText
	BlockHeading
	BlockBullet
	BlockOrdered
	BlockCode
	BlockQuote
	BlockTodo
	BlockCallout
	BlockToggle
	BlockDivider
	BlockFile
	BlockImage
	BlockGrid
	BlockGridColumn
	BlockTable
	BlockTableCell
	BlockBitable
	BlockQuoteContainer
	BlockEmbed

	blockKindCount
)

// AllBlockKinds enumerates every variant, BlockUnknown included
func AllBlockKinds() []BlockKind {
	kinds := make([]BlockKind, 0, blockKindCount)
	for k := BlockUnknown; k < blockKindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

var blockKindNames = [...]string{
	BlockUnknown:        "unknown",
	BlockPage:           "page",
	BlockText:           "text",
	BlockHeading:        "heading",
	BlockBullet:         "bullet",
	BlockOrdered:        "ordered",
	BlockCode:           "code",
	BlockQuote:          "quote",
	BlockTodo:           "todo",
	BlockCallout:        "callout",
	BlockToggle:         "toggle",
	BlockDivider:        "divider",
	BlockFile:           "file",
	BlockImage:          "image",
	BlockGrid:           "grid",
	BlockGridColumn:     "grid_column",
	BlockTable:          "table",
	BlockTableCell:      "table_cell",
	BlockBitable:        "bitable",
	BlockQuoteContainer: "quote_container",
	BlockEmbed:          "embed",
}

func (k BlockKind) String() string {
	if k < 0 || k >= blockKindCount {
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
	return blockKindNames[k]
}

// Platform block_type codes
const (
	codePage           = 1
	codeText           = 2
	codeHeading1       = 3
	codeHeading9       = 11
	codeBullet         = 12
	codeOrdered        = 13
	codeCode           = 14
	codeQuote          = 15
	codeTodo           = 17
	codeBitable        = 18
	codeCallout        = 19
	codeDivider        = 22
	codeFile           = 23
	codeGrid           = 24
	codeGridColumn     = 25
	codeImage          = 27
	codeTable          = 31
	codeTableCell      = 32
	codeQuoteContainer = 34
)

var kindByCode = map[int]BlockKind{
	codePage:           BlockPage,
	codeText:           BlockText,
	codeBullet:         BlockBullet,
	codeOrdered:        BlockOrdered,
	codeCode:           BlockCode,
	codeQuote:          BlockQuote,
	codeTodo:           BlockTodo,
	codeBitable:        BlockBitable,
	codeCallout:        BlockCallout,
	codeDivider:        BlockDivider,
	codeFile:           BlockFile,
	codeGrid:           BlockGrid,
	codeGridColumn:     BlockGridColumn,
	codeImage:          BlockImage,
	codeTable:          BlockTable,
	codeTableCell:      BlockTableCell,
	codeQuoteContainer: BlockQuoteContainer,
	20:                 BlockEmbed, // chat card
	21:                 BlockEmbed, // diagram
	26:                 BlockEmbed, // iframe
	28:                 BlockEmbed, // isv
	29:                 BlockEmbed, // mindnote
	30:                 BlockEmbed, // sheet
	33:                 BlockEmbed, // view
}

// TextStyle is the inline style of one run
type TextStyle struct {
	Bold       bool
	Italic     bool
	Underline  bool
	Strike     bool
	InlineCode bool
	Link       string
}

// TextRun is a piece of text sharing one style
type TextRun struct {
	Content string
	Style   TextStyle
}

// ImageRef points at an image asset
type ImageRef struct {
	Token  string
	URL    string
	Width  int
	Height int
}

// FileRef points at an attached file
type FileRef struct {
	Token string
	Name  string
	URL   string
}

// Block is one structural unit of a document
type Block struct {
	ID       string
	ParentID string
	Children []string
	Kind     BlockKind
	RawType  int

	Level    int // headings only, 1-9
	Runs     []TextRun
	Language int  // code blocks only
	Done     bool // todo only

	Emoji      string // callout only
	Background int    // callout only

	Image *ImageRef
	File  *FileRef

	// DecodeErr is set when the payload could not be decoded
	DecodeErr error
}

// PlainText concatenates the run contents without styling
func (b Block) PlainText() string {
	var sb strings.Builder
	for _, run := range b.Runs {
		sb.WriteString(run.Content)
	}
	return sb.String()
}

type rawStyle struct {
	Bold          bool `json:"bold"`
	Italic        bool `json:"italic"`
	Underline     bool `json:"underline"`
	Strikethrough bool `json:"strikethrough"`
	Strike        bool `json:"strike"`
	InlineCode    bool `json:"inline_code"`
	Link          *struct {
		URL string `json:"url"`
	} `json:"link"`
}

type rawElement struct {
	TextRun *struct {
		Content string   `json:"content"`
		Style   rawStyle `json:"text_element_style"`
	} `json:"text_run"`
	MentionDoc *struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"mention_doc"`
	Equation *struct {
		Content string `json:"content"`
	} `json:"equation"`
}

type rawText struct {
	Elements []rawElement `json:"elements"`
	Style    struct {
		Language int  `json:"language"`
		Done     bool `json:"done"`
		Folded   bool `json:"folded"`
	} `json:"style"`
}

type rawBlock struct {
	BlockID   string   `json:"block_id"`
	ParentID  string   `json:"parent_id"`
	Children  []string `json:"children"`
	BlockType int      `json:"block_type"`

	Text     *rawText `json:"text"`
	Heading1 *rawText `json:"heading1"`
	Heading2 *rawText `json:"heading2"`
	Heading3 *rawText `json:"heading3"`
	Heading4 *rawText `json:"heading4"`
	Heading5 *rawText `json:"heading5"`
	Heading6 *rawText `json:"heading6"`
	Heading7 *rawText `json:"heading7"`
	Heading8 *rawText `json:"heading8"`
	Heading9 *rawText `json:"heading9"`
	Bullet   *rawText `json:"bullet"`
	Ordered  *rawText `json:"ordered"`
	Code     *rawText `json:"code"`
	Quote    *rawText `json:"quote"`
	Todo     *rawText `json:"todo"`
	Toggle   *rawText `json:"toggle"`

	Callout *struct {
		EmojiID         string       `json:"emoji_id"`
		BackgroundColor int          `json:"background_color"`
		Elements        []rawElement `json:"elements"`
	} `json:"callout"`

	Image *struct {
		Token  string `json:"token"`
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"image"`

	File *struct {
		Token string `json:"token"`
		Name  string `json:"name"`
		URL   string `json:"url"`
	} `json:"file"`
}

// DecodeBlock turns one raw API item into a Block.
// A malformed item still yields a Block carrying DecodeErr, so it can be rendered as a placeholder.
func DecodeBlock(data json.RawMessage) Block {
	var raw rawBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		// Salvage the id for the placeholder when possible
		var id struct {
			BlockID   string `json:"block_id"`
			BlockType int    `json:"block_type"`
		}
		_ = json.Unmarshal(data, &id)
		return Block{
			ID:        id.BlockID,
			RawType:   id.BlockType,
			Kind:      BlockUnknown,
			DecodeErr: err,
		}
	}
	return raw.toBlock()
}

func (r rawBlock) toBlock() Block {
	b := Block{
		ID:       r.BlockID,
		ParentID: r.ParentID,
		Children: r.Children,
		RawType:  r.BlockType,
		Kind:     BlockUnknown,
	}

	// Toggle payloads win over the numeric code
	if r.Toggle != nil {
		b.Kind = BlockToggle
		b.Runs = decodeRuns(r.Toggle.Elements)
		return b
	}

	if r.BlockType >= codeHeading1 && r.BlockType <= codeHeading9 {
		b.Kind = BlockHeading
		b.Level = r.BlockType - codeHeading1 + 1
		headings := [...]*rawText{r.Heading1, r.Heading2, r.Heading3, r.Heading4, r.Heading5, r.Heading6, r.Heading7, r.Heading8, r.Heading9}
		if h := headings[b.Level-1]; h != nil {
			b.Runs = decodeRuns(h.Elements)
		}
		return b
	}

	kind, ok := kindByCode[r.BlockType]
	if !ok {
		return b
	}
	b.Kind = kind

	switch kind {
	case BlockText:
		if r.Text != nil {
			b.Runs = decodeRuns(r.Text.Elements)
			if r.Text.Style.Folded && len(r.Children) > 0 {
				b.Kind = BlockToggle
			}
		}
	case BlockBullet:
		b.Runs = runsOf(r.Bullet)
	case BlockOrdered:
		b.Runs = runsOf(r.Ordered)
	case BlockQuote:
		b.Runs = runsOf(r.Quote)
	case BlockCode:
		if r.Code != nil {
			b.Runs = decodeRuns(r.Code.Elements)
			b.Language = r.Code.Style.Language
		}
	case BlockTodo:
		if r.Todo != nil {
			b.Runs = decodeRuns(r.Todo.Elements)
			b.Done = r.Todo.Style.Done
		}
	case BlockCallout:
		if r.Callout != nil {
			b.Emoji = r.Callout.EmojiID
			b.Background = r.Callout.BackgroundColor
			b.Runs = decodeRuns(r.Callout.Elements)
		}
	case BlockImage:
		b.Image = &ImageRef{}
		if r.Image != nil {
			b.Image = &ImageRef{Token: r.Image.Token, URL: r.Image.URL, Width: r.Image.Width, Height: r.Image.Height}
		}
	case BlockFile:
		b.File = &FileRef{}
		if r.File != nil {
			b.File = &FileRef{Token: r.File.Token, Name: r.File.Name, URL: r.File.URL}
		}
	}

	return b
}

func runsOf(t *rawText) []TextRun {
	if t == nil {
		return nil
	}
	return decodeRuns(t.Elements)
}

func decodeRuns(elements []rawElement) []TextRun {
	runs := make([]TextRun, 0, len(elements))
	for _, el := range elements {
		switch {
		case el.TextRun != nil:
			style := TextStyle{
				Bold:       el.TextRun.Style.Bold,
				Italic:     el.TextRun.Style.Italic,
				Underline:  el.TextRun.Style.Underline,
				Strike:     el.TextRun.Style.Strikethrough || el.TextRun.Style.Strike,
				InlineCode: el.TextRun.Style.InlineCode,
			}
			if el.TextRun.Style.Link != nil {
				style.Link = unescapeLink(el.TextRun.Style.Link.URL)
			}
			runs = append(runs, TextRun{Content: el.TextRun.Content, Style: style})
		case el.MentionDoc != nil:
			runs = append(runs, TextRun{
				Content: el.MentionDoc.Title,
				Style:   TextStyle{Link: unescapeLink(el.MentionDoc.URL)},
			})
		case el.Equation != nil:
			runs = append(runs, TextRun{
				Content: el.Equation.Content,
				Style:   TextStyle{InlineCode: true},
			})
		}
	}
	return runs
}

// unescapeLink decodes the percent-encoded link urls the API returns
func unescapeLink(link string) string {
	if !strings.Contains(link, "%") {
		return link
	}
	decoded, err := url.QueryUnescape(link)
	if err != nil {
		return link
	}
	return decoded
}
