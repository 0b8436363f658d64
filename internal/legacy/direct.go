package legacy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kfreiman/feishuingest/internal/feishu"
)

// emptyContentNote replaces a document body the API answered with nothing
const emptyContentNote = "_The document content is empty._"

// directMarkdown builds Markdown from a direct content answer.
// String content is used as is; structured content becomes a JSON code block.
func directMarkdown(doc *feishu.LegacyDocument) (string, error) {
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = feishu.UntitledDocument
	}

	body, err := contentText(doc.Content)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(body) == "" {
		body = emptyContentNote
	}

	return fmt.Sprintf("# %s\n\n%s\n", title, body), nil
}

func contentText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", fmt.Errorf("decode legacy content: %w", err)
		}
		return s, nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, trimmed, "", "  "); err != nil {
		return "", fmt.Errorf("decode legacy content: %w", err)
	}
	return "```json\n" + pretty.String() + "\n```", nil
}
