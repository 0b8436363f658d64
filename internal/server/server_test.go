package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kfreiman/feishuingest/internal/asset"
	"github.com/kfreiman/feishuingest/internal/feishu"
	"github.com/kfreiman/feishuingest/internal/ingest"
	"github.com/kfreiman/feishuingest/internal/render"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// fakeIngestor answers every call with a fixed result or error
type fakeIngestor struct {
	result *ingest.Result
	err    error
	urls   []string
}

func (f *fakeIngestor) Ingest(_ context.Context, rawURL string) (*ingest.Result, error) {
	f.urls = append(f.urls, rawURL)
	return f.result, f.err
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Fetcher == nil {
		cfg.Fetcher = feishu.NewClient(feishu.ClientConfig{Timeout: 5 * time.Second, Retry: &feishu.NoRetry})
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	return srv
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServer_RequiresFetcher(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
}

func TestServer_ParseHandler(t *testing.T) {
	t.Run("returns content and stats", func(t *testing.T) {
		ingestor := &fakeIngestor{result: &ingest.Result{
			Content: "<h1>Notes</h1>\n<p>hi</p>\n",
			Stats:   render.Stats{TextBlocks: 1},
		}}
		srv := newTestServer(t, Config{Ingestor: ingestor})

		req := httptest.NewRequest(http.MethodPost, ParsePath, strings.NewReader(`{"url":" https://feishu.cn/docx/XYZ "}`))
		w := serve(srv, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, []string{"https://feishu.cn/docx/XYZ"}, ingestor.urls)

		var body struct {
			Content string         `json:"content"`
			Stats   map[string]int `json:"stats"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "<h1>Notes</h1>\n<p>hi</p>\n", body.Content)
		assert.Equal(t, 1, body.Stats["textBlocks"])
		assert.Contains(t, body.Stats, "unknown")
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		srv := newTestServer(t, Config{Ingestor: &fakeIngestor{}})

		for _, payload := range []string{`{}`, `{"url":"  "}`, `not json`} {
			w := serve(srv, httptest.NewRequest(http.MethodPost, ParsePath, strings.NewReader(payload)))
			assert.Equal(t, http.StatusBadRequest, w.Code, payload)
			assert.Contains(t, w.Body.String(), `"error"`)
		}
	})

	t.Run("without credentials", func(t *testing.T) {
		srv := newTestServer(t, Config{})

		w := serve(srv, httptest.NewRequest(http.MethodPost, ParsePath, strings.NewReader(`{"url":"https://feishu.cn/docx/XYZ"}`)))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "credentials are not configured")
	})
}

func TestServer_ParseHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		details string
	}{
		{"invalid link", &feishu.InvalidLinkError{URL: "https://example.com", Reason: "not a recognized document link"}, http.StatusBadRequest, "not a recognized document link"},
		{"unsupported kind", &feishu.UnsupportedKindError{Kind: feishu.KindSheet}, http.StatusBadRequest, "sheet"},
		{"permission", &feishu.PermissionError{Operation: "list blocks", Code: 11304}, http.StatusForbidden, "docx:document:readonly"},
		{"authentication", &feishu.AuthenticationError{Msg: "app secret invalid"}, http.StatusInternalServerError, ""},
		{"export timeout", &feishu.ExportTimeoutError{TaskID: "task-1", Attempts: 20}, http.StatusInternalServerError, ""},
		{"anything else", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Config{Ingestor: &fakeIngestor{err: tt.err}})

			w := serve(srv, httptest.NewRequest(http.MethodPost, ParsePath, strings.NewReader(`{"url":"https://feishu.cn/docx/XYZ"}`)))
			assert.Equal(t, tt.status, w.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			if tt.details != "" {
				assert.Contains(t, body.Details, tt.details)
			}
		})
	}
}

func TestServer_ProxyHandler(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/image.png":
			if r.Header.Get("Authorization") != "Bearer t-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngBytes)
		case "/denied.png":
			w.WriteHeader(http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	upstreamURL, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	srv := newTestServer(t, Config{ProxyHosts: []string{upstreamURL.Hostname()}})
	proxy := func(target, token string) *httptest.ResponseRecorder {
		return serve(srv, httptest.NewRequest(http.MethodGet, asset.ProxyURL("/api/proxy-image", target, feishu.NewAccessCredential(token)), nil))
	}

	t.Run("passes bytes through with the bearer token", func(t *testing.T) {
		w := proxy(upstream.URL+"/image.png", "t-1")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
		assert.Equal(t, pngBytes, w.Body.Bytes())
	})

	t.Run("missing token is passed through as an upstream status", func(t *testing.T) {
		w := proxy(upstream.URL+"/image.png", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("denied upstream becomes a placeholder image", func(t *testing.T) {
		w := proxy(upstream.URL+"/denied.png", "t-1")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/svg+xml", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "<svg")
	})

	t.Run("other upstream errors pass their status through", func(t *testing.T) {
		w := proxy(upstream.URL+"/missing.png", "t-1")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("rejects missing and non-http targets", func(t *testing.T) {
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/api/proxy-image", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = proxy("file:///etc/passwd", "t-1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects hosts outside the platform", func(t *testing.T) {
		for _, target := range []string{
			"http://169.254.169.254/latest/meta-data/",
			"http://localhost:6379/",
			"https://feishu.cn.attacker.example/a.png",
		} {
			w := proxy(target, "t-1")
			assert.Equal(t, http.StatusBadRequest, w.Code, target)
			assert.Contains(t, w.Body.String(), "not a platform asset host", target)
		}
	})
}

func TestServer_ServesCachedImages(t *testing.T) {
	store, err := asset.NewLocalStore(asset.LocalStoreConfig{
		Dir:        "/public/images/feishu",
		URLPrefix:  "/images/feishu",
		FileSystem: asset.NewMemMapFileSystem(),
	})
	require.NoError(t, err)

	imageURL, err := store.Save(context.Background(), pngBytes, "image/png")
	require.NoError(t, err)

	srv := newTestServer(t, Config{Store: store, Images: store.Handler(), ImageURLPrefix: store.URLPrefix()})

	w := serve(srv, httptest.NewRequest(http.MethodGet, imageURL, nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, body)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/images/feishu/missing.png", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_LivenessHandler(t *testing.T) {
	srv := newTestServer(t, Config{})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"service":"feishuingest"`)
	assert.Contains(t, w.Body.String(), `"timestamp"`)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestServer_ReadinessHandler(t *testing.T) {
	newStore := func(t *testing.T) (*asset.LocalStore, asset.FileSystem) {
		fs := asset.NewMemMapFileSystem()
		store, err := asset.NewLocalStore(asset.LocalStoreConfig{Dir: "/images", FileSystem: fs})
		require.NoError(t, err)
		return store, fs
	}

	t.Run("storage and cache reachable", func(t *testing.T) {
		store, _ := newStore(t)
		mr := miniredis.RunT(t)
		cache, err := ingest.NewRedisCache(context.Background(), "redis://"+mr.Addr(), time.Minute)
		require.NoError(t, err)
		t.Cleanup(func() { _ = cache.Close() })

		srv := newTestServer(t, Config{Ingestor: &fakeIngestor{}, Store: store, Cache: cache})
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"storage":"accessible"`)
		assert.Contains(t, w.Body.String(), `"cache":"reachable"`)
		assert.Contains(t, w.Body.String(), `"credentials":"configured"`)
	})

	t.Run("storage inaccessible", func(t *testing.T) {
		store, fs := newStore(t)
		require.NoError(t, fs.Remove("/images"))

		srv := newTestServer(t, Config{Store: store})
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
		assert.Contains(t, w.Body.String(), `"storage":"inaccessible"`)
	})

	t.Run("cache unreachable", func(t *testing.T) {
		store, _ := newStore(t)
		mr := miniredis.RunT(t)
		cache, err := ingest.NewRedisCache(context.Background(), "redis://"+mr.Addr(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, cache.Close())

		srv := newTestServer(t, Config{Store: store, Cache: cache})
		w := serve(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"cache":"unreachable"`)
	})
}

func TestServer_IndexHandler(t *testing.T) {
	srv := newTestServer(t, Config{})

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ParsePath)
	assert.Contains(t, w.Body.String(), "/mcp")
}
