package feishu

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBlock(t *testing.T) {
	t.Run("heading level follows the block type", func(t *testing.T) {
		b := DecodeBlock(json.RawMessage(`{
			"block_id": "h", "block_type": 5,
			"heading3": {"elements": [{"text_run": {"content": "Section"}}]}
		}`))

		assert.Equal(t, BlockHeading, b.Kind)
		assert.Equal(t, 3, b.Level)
		assert.Equal(t, "Section", b.PlainText())
	})

	t.Run("text run styles and encoded links", func(t *testing.T) {
		b := DecodeBlock(json.RawMessage(`{
			"block_id": "p", "block_type": 2,
			"text": {"elements": [
				{"text_run": {"content": "go", "text_element_style": {"bold": true, "strikethrough": true, "link": {"url": "https%3A%2F%2Fgo.dev%2F"}}}},
				{"mention_doc": {"title": "Spec", "url": "https://feishu.cn/docx/Spec1"}}
			]}
		}`))

		require.Len(t, b.Runs, 2)
		assert.True(t, b.Runs[0].Style.Bold)
		assert.True(t, b.Runs[0].Style.Strike)
		assert.Equal(t, "https://go.dev/", b.Runs[0].Style.Link)
		assert.Equal(t, "Spec", b.Runs[1].Content)
		assert.Equal(t, "https://feishu.cn/docx/Spec1", b.Runs[1].Style.Link)
	})

	t.Run("image and file payloads", func(t *testing.T) {
		img := DecodeBlock(json.RawMessage(`{"block_id": "i", "block_type": 27, "image": {"token": "imgTok", "width": 1600, "height": 900}}`))
		assert.Equal(t, BlockImage, img.Kind)
		require.NotNil(t, img.Image)
		assert.Equal(t, ImageRef{Token: "imgTok", Width: 1600, Height: 900}, *img.Image)

		file := DecodeBlock(json.RawMessage(`{"block_id": "f", "block_type": 23, "file": {"token": "fileTok", "name": "report.pdf"}}`))
		assert.Equal(t, BlockFile, file.Kind)
		require.NotNil(t, file.File)
		assert.Equal(t, "report.pdf", file.File.Name)
	})

	t.Run("folded text with children is a toggle", func(t *testing.T) {
		b := DecodeBlock(json.RawMessage(`{
			"block_id": "t", "block_type": 2, "children": ["c1"],
			"text": {"style": {"folded": true}, "elements": [{"text_run": {"content": "More"}}]}
		}`))
		assert.Equal(t, BlockToggle, b.Kind)
	})

	t.Run("unknown codes keep the raw type", func(t *testing.T) {
		b := DecodeBlock(json.RawMessage(`{"block_id": "u", "block_type": 999}`))
		assert.Equal(t, BlockUnknown, b.Kind)
		assert.Equal(t, 999, b.RawType)
		assert.NoError(t, b.DecodeErr)
	})

	t.Run("malformed payload keeps the id and records the error", func(t *testing.T) {
		b := DecodeBlock(json.RawMessage(`{"block_id": "m", "block_type": 2, "text": "not an object"}`))
		assert.Equal(t, "m", b.ID)
		assert.Equal(t, BlockUnknown, b.Kind)
		assert.Error(t, b.DecodeErr)
	})
}

func TestBlockKind_String(t *testing.T) {
	for _, kind := range AllBlockKinds() {
		assert.NotContains(t, kind.String(), "BlockKind(", "kind %d has no name", int(kind))
	}
	assert.Equal(t, "BlockKind(99)", BlockKind(99).String())
}
