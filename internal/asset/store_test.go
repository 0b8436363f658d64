package asset

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestLocalStore_NewLocalStore(t *testing.T) {
	t.Run("creates the image directory", func(t *testing.T) {
		fs := NewMemMapFileSystem()
		store, err := NewLocalStore(LocalStoreConfig{Dir: "/public/images/feishu", FileSystem: fs})
		require.NoError(t, err)

		assert.Equal(t, "/images/feishu", store.URLPrefix())
		assert.True(t, store.Accessible(context.Background()))
	})

	t.Run("fails on a read-only filesystem", func(t *testing.T) {
		fs := NewAferoFileSystem(afero.NewReadOnlyFs(afero.NewMemMapFs()))
		_, err := NewLocalStore(LocalStoreConfig{Dir: "/images", FileSystem: fs})

		var storageErr *StorageError
		assert.ErrorAs(t, err, &storageErr)
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("writes allowed images under the url prefix", func(t *testing.T) {
		mem := afero.NewMemMapFs()
		store, err := NewLocalStore(LocalStoreConfig{Dir: "/images", URLPrefix: "/images/feishu", FileSystem: NewAferoFileSystem(mem)})
		require.NoError(t, err)

		publicURL, err := store.Save(context.Background(), pngBytes, "image/png")
		require.NoError(t, err)
		assert.Equal(t, ".png", path.Ext(publicURL))

		data, err := afero.ReadFile(mem, filepath.Join("/images", path.Base(publicURL)))
		require.NoError(t, err)
		assert.Equal(t, pngBytes, data)
	})

	t.Run("same bytes get distinct names", func(t *testing.T) {
		store, err := NewLocalStore(LocalStoreConfig{Dir: "/images", FileSystem: NewMemMapFileSystem()})
		require.NoError(t, err)

		first, err := store.Save(context.Background(), pngBytes, "image/png")
		require.NoError(t, err)
		second, err := store.Save(context.Background(), pngBytes, "image/png")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("sniffs generic content types", func(t *testing.T) {
		store, err := NewLocalStore(LocalStoreConfig{Dir: "/images", FileSystem: NewMemMapFileSystem()})
		require.NoError(t, err)

		publicURL, err := store.Save(context.Background(), pngBytes, "application/octet-stream")
		require.NoError(t, err)
		assert.Equal(t, ".png", path.Ext(publicURL))
	})

	t.Run("rejects non-image content", func(t *testing.T) {
		fs := NewMemMapFileSystem()
		store, err := NewLocalStore(LocalStoreConfig{Dir: "/images", FileSystem: fs})
		require.NoError(t, err)

		_, err = store.Save(context.Background(), []byte("<html></html>"), "text/html")
		var typeErr *ContentTypeError
		require.ErrorAs(t, err, &typeErr)
		assert.Equal(t, "text/html", typeErr.ContentType)
	})

	t.Run("cancelled context leaves no file behind", func(t *testing.T) {
		memFs := afero.NewMemMapFs()
		store, err := NewLocalStore(LocalStoreConfig{Dir: "/images", FileSystem: NewAferoFileSystem(memFs)})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = store.Save(ctx, pngBytes, "image/png")
		require.Error(t, err)

		entries, err := afero.ReadDir(memFs, "/images")
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestLocalStore_Handler(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(LocalStoreConfig{Dir: dir, URLPrefix: "/images/feishu", FileSystem: NewOSFileSystem()})
	require.NoError(t, err)

	publicURL, err := store.Save(context.Background(), pngBytes, "image/png")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, path.Base(publicURL)))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, publicURL, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, pngBytes, body)
}

func TestImageType(t *testing.T) {
	tests := []struct {
		contentType string
		wantType    string
		wantExt     string
		wantErr     bool
	}{
		{"image/jpeg", "image/jpeg", ".jpg", false},
		{"image/png", "image/png", ".png", false},
		{"image/gif", "image/gif", ".gif", false},
		{"image/webp", "image/webp", ".webp", false},
		{"image/bmp", "image/bmp", ".bmp", false},
		{"IMAGE/PNG", "image/png", ".png", false},
		{"", "image/png", ".png", false},
		{"application/octet-stream", "image/png", ".png", false},
		{"image/svg+xml", "", "", true},
		{"application/pdf", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			mediaType, ext, err := ImageType(pngBytes, tt.contentType)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, mediaType)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}
