package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultPageSize is the largest page the block listing accepts
const DefaultPageSize = 500

// maxPages stops runaway pagination when the remote keeps answering has_more
const maxPages = 1000

// UntitledDocument is used when the platform reports no title
const UntitledDocument = "Untitled document"

// BlockFetcher lists the block tree of docx documents
type BlockFetcher struct {
	client   *Client
	pageSize int
}

// NewBlockFetcher creates a fetcher; pageSize <= 0 selects DefaultPageSize
func NewBlockFetcher(client *Client, pageSize int) *BlockFetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &BlockFetcher{
		client:   client,
		pageSize: pageSize,
	}
}

type blockPage struct {
	Items     []json.RawMessage `json:"items"`
	HasMore   bool              `json:"has_more"`
	PageToken string            `json:"page_token"`
}

// FetchBlocks returns every block of the document in document order,
// following the continuation cursor until the remote reports no more pages.
func (f *BlockFetcher) FetchBlocks(ctx context.Context, ref DocumentReference, cred AccessCredential) ([]Block, error) {
	var (
		blocks    []Block
		pageToken string
		seen      = make(map[string]bool)
	)

	for page := 1; ; page++ {
		if page > maxPages {
			return nil, &RemoteFetchError{
				Operation: "list blocks",
				Msg:       fmt.Sprintf("pagination exceeded %d pages", maxPages),
			}
		}

		query := url.Values{}
		query.Set("page_size", strconv.Itoa(f.pageSize))
		query.Set("document_revision_id", "-1")
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}
		path := fmt.Sprintf("/docx/v1/documents/%s/blocks?%s", url.PathEscape(ref.Token), query.Encode())

		var result blockPage
		if err := f.client.call(ctx, "list blocks", http.MethodGet, path, cred, nil, &result); err != nil {
			f.client.logger.ErrorContext(ctx, "failed to list blocks",
				"doc_token", ref.Token,
				"page", page,
				"error", err,
			)
			return nil, err
		}

		for _, item := range result.Items {
			blocks = append(blocks, DecodeBlock(item))
		}

		f.client.logger.DebugContext(ctx, "block page fetched",
			"doc_token", ref.Token,
			"page", page,
			"items", len(result.Items),
			"has_more", result.HasMore,
		)

		if !result.HasMore {
			break
		}
		if result.PageToken == "" || seen[result.PageToken] {
			return nil, &RemoteFetchError{
				Operation: "list blocks",
				Msg:       "has_more set without a fresh page_token",
			}
		}
		seen[result.PageToken] = true
		pageToken = result.PageToken
	}

	f.client.logger.InfoContext(ctx, "blocks fetched",
		"doc_token", ref.Token,
		"blocks", len(blocks),
	)

	return blocks, nil
}

// FetchTitle returns the document title, UntitledDocument when empty
func (f *BlockFetcher) FetchTitle(ctx context.Context, ref DocumentReference, cred AccessCredential) (string, error) {
	var result struct {
		Document struct {
			Title string `json:"title"`
		} `json:"document"`
	}

	path := "/docx/v1/documents/" + url.PathEscape(ref.Token)
	if err := f.client.call(ctx, "get document", http.MethodGet, path, cred, nil, &result); err != nil {
		return UntitledDocument, err
	}
	if result.Document.Title == "" {
		return UntitledDocument, nil
	}
	return result.Document.Title, nil
}
