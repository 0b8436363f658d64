package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kfreiman/feishuingest/internal/feishu"
)

// Fetcher downloads a remote asset on behalf of the proxy
type Fetcher interface {
	Fetch(ctx context.Context, target string, cred feishu.AccessCredential, limit int64) (*feishu.MediaDownload, error)
}

const proxyCacheControl = "public, max-age=86400"

// deniedImage is shown in place of an asset the app may not read
const deniedImage = `<svg xmlns="http://www.w3.org/2000/svg" width="320" height="120" viewBox="0 0 320 120">` +
	`<rect width="320" height="120" fill="#f5f6f7" stroke="#e5e6eb"/>` +
	`<text x="160" y="55" font-family="sans-serif" font-size="14" fill="#646a73" text-anchor="middle">Image unavailable</text>` +
	`<text x="160" y="80" font-family="sans-serif" font-size="12" fill="#8f959e" text-anchor="middle">no permission to read this image</text>` +
	`</svg>`

// ProxyHandler fetches ?url= with the bearer ?token= and passes the bytes through
func (s *Server) ProxyHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	target := query.Get("url")
	if target == "" {
		writeError(w, &ValidationError{Field: "url", Reason: "required parameter missing"})
		return
	}
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		writeError(w, &ValidationError{Field: "url", Value: target, Reason: "must be an absolute http(s) URL"})
		return
	}
	if !s.proxyAllowed(parsed.Hostname()) {
		s.logger.WarnContext(ctx, "proxy target host rejected", "host", parsed.Hostname())
		writeError(w, &ValidationError{Field: "url", Value: target, Reason: "host is not a platform asset host"})
		return
	}

	var cred feishu.AccessCredential
	if token := query.Get("token"); token != "" {
		cred = feishu.NewAccessCredential(token)
	}

	download, err := s.fetcher.Fetch(ctx, target, cred, feishu.MaxMediaSize)
	if err != nil {
		s.proxyFailure(w, r, target, err)
		return
	}

	contentType := download.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(download.Body)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(download.Body)))
	w.Header().Set("Cache-Control", proxyCacheControl)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(download.Body)
}

// proxyAllowed limits proxy targets to the platform hosts and the configured extra hosts
func (s *Server) proxyAllowed(host string) bool {
	return feishu.IsPlatformHost(host) || feishu.MatchesDomain(host, s.config.ProxyHosts)
}

func (s *Server) proxyFailure(w http.ResponseWriter, r *http.Request, target string, err error) {
	ctx := r.Context()

	if feishu.IsPermission(err) {
		s.logger.WarnContext(ctx, "proxy target denied", "url", target)
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(deniedImage))
		return
	}

	s.logger.WarnContext(ctx, "proxy fetch failed",
		"error", err,
		"url", target,
	)

	status := http.StatusBadGateway
	var netErr *feishu.NetworkError
	if errors.As(err, &netErr) && netErr.Status >= 400 {
		status = netErr.Status
	}
	writeJSON(w, status, ErrorResponse{Error: "failed to fetch image", Details: err.Error()})
}
