package asset

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// AllowedImageTypes maps the image media types that may be persisted to their file extension
var AllowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// Store persists image bytes and returns the URL they are served under
type Store interface {
	Save(ctx context.Context, data []byte, contentType string) (string, error)
	Accessible(ctx context.Context) bool
}

// StorageError represents a storage-related failure
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	msg := fmt.Sprintf("storage error during %s", e.Operation)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ContentTypeError is returned when bytes are not an allowed image type
type ContentTypeError struct {
	ContentType string
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("content type %q is not an allowed image type", e.ContentType)
}

// ImageType validates contentType against the allow-list, sniffing data when the type is empty or generic.
// It returns the effective media type and its file extension.
func ImageType(data []byte, contentType string) (mediaType, ext string, err error) {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = strings.Split(http.DetectContentType(data), ";")[0]
	}
	mediaType = strings.ToLower(contentType)
	ext, ok := AllowedImageTypes[mediaType]
	if !ok {
		return "", "", &ContentTypeError{ContentType: contentType}
	}
	return mediaType, ext, nil
}

// GenerateName derives a collision-resistant file name from the content hash plus a random suffix
func GenerateName(data []byte, ext string) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x-%s%s", sum[:12], uuid.NewString()[:8], ext)
}

// LocalStoreConfig holds configuration for the local image store
type LocalStoreConfig struct {
	Dir        string
	URLPrefix  string
	FileSystem FileSystem   // Optional: defaults to the OS filesystem
	Logger     *slog.Logger // Optional: defaults to a discard logger
}

// LocalStore writes images below an application-controlled directory
type LocalStore struct {
	dir       string
	urlPrefix string
	fs        FileSystem
	logger    *slog.Logger
}

// NewLocalStore creates the image directory and returns a store writing into it
func NewLocalStore(config LocalStoreConfig) (*LocalStore, error) {
	ctx := context.Background()

	if config.Dir == "" {
		config.Dir = "./public/images/feishu"
	}
	if config.URLPrefix == "" {
		config.URLPrefix = "/images/feishu"
	}
	if config.FileSystem == nil {
		config.FileSystem = NewOSFileSystem()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := config.FileSystem.MkdirAll(config.Dir, 0755); err != nil {
		config.Logger.ErrorContext(ctx, "failed to create image directory",
			"error", err,
			"path", config.Dir,
		)
		return nil, &StorageError{
			Operation: "init - create directory",
			Path:      config.Dir,
			Err:       err,
		}
	}

	config.Logger.InfoContext(ctx, "local image store initialized",
		"dir", config.Dir,
		"url_prefix", config.URLPrefix,
	)

	return &LocalStore{
		dir:       config.Dir,
		urlPrefix: strings.TrimRight(config.URLPrefix, "/"),
		fs:        config.FileSystem,
		logger:    config.Logger,
	}, nil
}

// Save validates the image type and writes it atomically.
// The bytes go to a temporary name first and are renamed into place, so readers never see a partial file.
func (s *LocalStore) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	_, ext, err := ImageType(data, contentType)
	if err != nil {
		s.logger.WarnContext(ctx, "refusing to persist asset",
			"content_type", contentType,
			"size", len(data),
		)
		return "", err
	}
	if len(data) == 0 {
		return "", &StorageError{Operation: "save image", Err: fmt.Errorf("empty body")}
	}

	name := GenerateName(data, ext)
	target := filepath.Join(s.dir, name)
	tmp := filepath.Join(s.dir, ".tmp-"+uuid.NewString())

	if err := s.fs.WriteFile(tmp, data, 0644); err != nil {
		_ = s.fs.Remove(tmp)
		s.logger.ErrorContext(ctx, "failed to write image",
			"error", err,
			"path", tmp,
		)
		return "", &StorageError{Operation: "save image", Path: tmp, Err: err}
	}

	// Abandon the write if the ingestion was cancelled meanwhile
	if err := ctx.Err(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", &StorageError{Operation: "save image", Path: target, Err: err}
	}

	if err := s.fs.Rename(tmp, target); err != nil {
		_ = s.fs.Remove(tmp)
		s.logger.ErrorContext(ctx, "failed to move image into place",
			"error", err,
			"path", target,
		)
		return "", &StorageError{Operation: "save image", Path: target, Err: err}
	}

	s.logger.DebugContext(ctx, "image saved",
		"path", target,
		"content_type", contentType,
		"size", len(data),
	)

	return path.Join(s.urlPrefix, name), nil
}

// Accessible checks if the image directory exists
func (s *LocalStore) Accessible(ctx context.Context) bool {
	info, err := s.fs.Stat(s.dir)
	return err == nil && info.IsDir()
}

// URLPrefix returns the public prefix images are served under
func (s *LocalStore) URLPrefix() string {
	return s.urlPrefix
}

// Handler serves stored images below the URL prefix
func (s *LocalStore) Handler() http.Handler {
	return http.StripPrefix(s.urlPrefix, http.FileServer(s.fs.HTTP(s.dir)))
}
