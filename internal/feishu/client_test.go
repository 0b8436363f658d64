package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
		Retry:   &NoRetry,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestCredentialProvider_Credential(t *testing.T) {
	t.Run("returns bearer credential", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/auth/v3/tenant_access_token/internal", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "cli_app", body["app_id"])
			assert.Equal(t, "s3cret", body["app_secret"])

			writeJSON(w, map[string]any{"code": 0, "tenant_access_token": "t-123", "expire": 7200})
		}))

		provider := NewCredentialProvider(client, Credentials{AppID: "cli_app", AppSecret: "s3cret"})
		cred, err := provider.Credential(context.Background())
		require.NoError(t, err)
		assert.Equal(t, AccessCredential("Bearer t-123"), cred)
	})

	t.Run("missing token is an authentication error carrying msg", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 10014, "msg": "app secret invalid"})
		}))

		provider := NewCredentialProvider(client, Credentials{AppID: "cli_app", AppSecret: "wrong"})
		_, err := provider.Credential(context.Background())
		require.Error(t, err)

		var authErr *AuthenticationError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, authErr.Error(), "app secret invalid")
	})

	t.Run("transport failure is an authentication error", func(t *testing.T) {
		client := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second, Retry: &NoRetry})
		provider := NewCredentialProvider(client, Credentials{AppID: "a", AppSecret: "b"})

		_, err := provider.Credential(context.Background())
		assert.True(t, IsAuthentication(err))
	})

	t.Run("missing credentials fail without a network call", func(t *testing.T) {
		var calls int32
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		}))

		_, err := NewCredentialProvider(client, Credentials{}).Credential(context.Background())
		assert.True(t, IsAuthentication(err))
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})
}

func TestBlockFetcher_FetchBlocks(t *testing.T) {
	t.Run("follows the continuation cursor", func(t *testing.T) {
		var pages []string
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/docx/v1/documents/Doc1/blocks", r.URL.Path)
			assert.Equal(t, "Bearer t-1", r.Header.Get("Authorization"))
			assert.Equal(t, "500", r.URL.Query().Get("page_size"))

			token := r.URL.Query().Get("page_token")
			pages = append(pages, token)

			switch token {
			case "":
				writeJSON(w, map[string]any{"code": 0, "data": map[string]any{
					"items":      []any{textBlock("b1", "one"), textBlock("b2", "two")},
					"has_more":   true,
					"page_token": "p2",
				}})
			case "p2":
				writeJSON(w, map[string]any{"code": 0, "data": map[string]any{
					"items":    []any{textBlock("b3", "three")},
					"has_more": false,
				}})
			default:
				t.Errorf("unexpected page token %q", token)
				w.WriteHeader(http.StatusBadRequest)
			}
		}))

		fetcher := NewBlockFetcher(client, 0)
		blocks, err := fetcher.FetchBlocks(context.Background(), DocumentReference{Kind: KindDocx, Token: "Doc1"}, "Bearer t-1")
		require.NoError(t, err)

		assert.Equal(t, []string{"", "p2"}, pages)
		require.Len(t, blocks, 3)
		assert.Equal(t, "b1", blocks[0].ID)
		assert.Equal(t, "three", blocks[2].PlainText())
	})

	t.Run("non-zero code is a remote fetch error with the remote message", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 1770002, "msg": "not found"})
		}))

		_, err := NewBlockFetcher(client, 0).FetchBlocks(context.Background(), DocumentReference{Kind: KindDocx, Token: "Doc1"}, "Bearer t")
		var fetchErr *RemoteFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, 1770002, fetchErr.Code)
		assert.Equal(t, "not found", fetchErr.Msg)
	})

	t.Run("permission answers become permission errors", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]any{"code": 1770032, "msg": "forBidden"})
		}))

		_, err := NewBlockFetcher(client, 0).FetchBlocks(context.Background(), DocumentReference{Kind: KindDocx, Token: "Doc1"}, "Bearer t")
		assert.True(t, IsPermission(err))
	})

	t.Run("repeated page token is rejected", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, map[string]any{"code": 0, "data": map[string]any{
				"items":      []any{textBlock("b1", "loop")},
				"has_more":   true,
				"page_token": "same",
			}})
		}))

		_, err := NewBlockFetcher(client, 0).FetchBlocks(context.Background(), DocumentReference{Kind: KindDocx, Token: "Doc1"}, "Bearer t")
		var fetchErr *RemoteFetchError
		require.ErrorAs(t, err, &fetchErr)
	})
}

func TestBlockFetcher_FetchTitle(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/docx/v1/documents/Named" {
			writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"document": map[string]any{"title": "Quarterly plan"}}})
			return
		}
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"document": map[string]any{}}})
	}))

	fetcher := NewBlockFetcher(client, 0)

	title, err := fetcher.FetchTitle(context.Background(), DocumentReference{Kind: KindDocx, Token: "Named"}, "Bearer t")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly plan", title)

	title, err = fetcher.FetchTitle(context.Background(), DocumentReference{Kind: KindDocx, Token: "Blank"}, "Bearer t")
	require.NoError(t, err)
	assert.Equal(t, UntitledDocument, title)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"document": map[string]any{"title": "ok"}}})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		BaseURL: server.URL,
		Retry:   &RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Backoff: BackoffFixed},
	})

	title, err := NewBlockFetcher(client, 0).FetchTitle(context.Background(), DocumentReference{Kind: KindDocx, Token: "x"}, "Bearer t")
	require.NoError(t, err)
	assert.Equal(t, "ok", title)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DownloadMedia(t *testing.T) {
	t.Run("redirect is reported, not followed", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "https://cdn.example.com/img.png", http.StatusFound)
		}))

		download, err := client.DownloadMedia(context.Background(), "imgTok", "Bearer t")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.example.com/img.png", download.RedirectURL)
		assert.Empty(t, download.Body)
	})

	t.Run("bytes are returned with their media type", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/drive/v1/medias/imgTok/download", r.URL.Path)
			w.Header().Set("Content-Type", "image/png; charset=binary")
			_, _ = io.WriteString(w, "\x89PNG")
		}))

		download, err := client.DownloadMedia(context.Background(), "imgTok", "Bearer t")
		require.NoError(t, err)
		assert.Equal(t, "image/png", download.ContentType)
		assert.Equal(t, []byte("\x89PNG"), download.Body)
	})
}

func TestClient_Fetch(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/moved.png":
			http.Redirect(w, r, "/image.png", http.StatusFound)
		case "/escape.png":
			http.Redirect(w, r, "http://169.254.169.254/latest/meta-data/", http.StatusFound)
		case "/image.png":
			hits.Add(1)
			assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "image/png")
			_, _ = io.WriteString(w, "\x89PNG")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	client := NewClient(ClientConfig{Timeout: 5 * time.Second, Retry: &NoRetry})

	t.Run("same-host redirects are followed", func(t *testing.T) {
		download, err := client.Fetch(context.Background(), server.URL+"/moved.png", "Bearer t", MaxMediaSize)
		require.NoError(t, err)
		assert.Equal(t, "image/png", download.ContentType)
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("redirects to foreign hosts are refused", func(t *testing.T) {
		_, err := client.Fetch(context.Background(), server.URL+"/escape.png", "Bearer t", MaxMediaSize)

		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Contains(t, err.Error(), "foreign host 169.254.169.254")
	})
}

func TestClient_BatchTemporaryURLs(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			FileTokens []string `json:"file_tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		items := make([]any, 0, len(body.FileTokens))
		for _, tok := range body.FileTokens {
			items = append(items, map[string]string{"file_token": tok, "tmp_download_url": "https://tmp.example.com/" + tok})
		}
		writeJSON(w, map[string]any{"code": 0, "data": map[string]any{"tmp_download_urls": items}})
	}))

	urls, err := client.BatchTemporaryURLs(context.Background(), []string{"a", "b"}, "Bearer t")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"a": "https://tmp.example.com/a",
		"b": "https://tmp.example.com/b",
	}, urls)

	tooMany := make([]string, MaxBatchTokens+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("t%d", i)
	}
	_, err = client.BatchTemporaryURLs(context.Background(), tooMany, "Bearer t")
	assert.Error(t, err)
}

func TestParseExportStatus(t *testing.T) {
	zero, one, three := 0, 1, 3

	tests := []struct {
		name      string
		status    string
		jobStatus *int
		want      ExportStatus
	}{
		{"textual success", "success", nil, ExportSuccess},
		{"textual upper case running", "RUNNING", nil, ExportRunning},
		{"textual failed", "failed", nil, ExportFailed},
		{"numeric success", "", &zero, ExportSuccess},
		{"numeric processing", "", &one, ExportRunning},
		{"numeric error", "", &three, ExportFailed},
		{"nothing reported", "", nil, ExportRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseExportStatus(tt.status, tt.jobStatus))
		})
	}
}

func textBlock(id, content string) map[string]any {
	return map[string]any{
		"block_id":   id,
		"block_type": 2,
		"text": map[string]any{
			"elements": []any{
				map[string]any{"text_run": map[string]any{"content": content}},
			},
		},
	}
}
