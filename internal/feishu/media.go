package feishu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// MaxMediaSize bounds a single downloaded asset
const MaxMediaSize = 20 << 20

// MaxBatchTokens is the largest token list one temporary-URL call accepts
const MaxBatchTokens = 50

// MediaDownload is the outcome of the single-asset download endpoint.
// Exactly one of RedirectURL and Body is set.
type MediaDownload struct {
	RedirectURL string
	ContentType string
	Body        []byte
}

// DownloadMedia calls the single-asset download endpoint without following redirects
func (c *Client) DownloadMedia(ctx context.Context, token string, cred AccessCredential) (*MediaDownload, error) {
	if token == "" {
		return nil, &AssetResolutionError{Reason: "empty media token"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := fmt.Sprintf("%s/drive/v1/medias/%s/download", c.baseURL, url.PathEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if cred != "" {
		req.Header.Set("Authorization", cred.Header())
	}

	noRedirect := *c.httpClient
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	resp, err := noRedirect.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		location, err := resp.Location()
		if err != nil {
			return nil, &NetworkError{URL: target, Status: resp.StatusCode, Err: errors.New("redirect without location")}
		}
		return &MediaDownload{RedirectURL: location.String()}, nil
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, &PermissionError{Operation: "download media"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{URL: target, Status: resp.StatusCode}
	}

	body, err := readLimited(resp.Body, MaxMediaSize)
	if err != nil {
		return nil, &NetworkError{URL: target, Status: resp.StatusCode, Err: err}
	}

	return &MediaDownload{
		ContentType: MediaType(resp.Header.Get("Content-Type")),
		Body:        body,
	}, nil
}

// BatchTemporaryURLs resolves up to MaxBatchTokens tokens into time-limited download URLs
func (c *Client) BatchTemporaryURLs(ctx context.Context, tokens []string, cred AccessCredential) (map[string]string, error) {
	if len(tokens) == 0 {
		return map[string]string{}, nil
	}
	if len(tokens) > MaxBatchTokens {
		return nil, fmt.Errorf("batch of %d tokens exceeds limit %d", len(tokens), MaxBatchTokens)
	}

	var result struct {
		TmpDownloadURLs []struct {
			FileToken      string `json:"file_token"`
			TmpDownloadURL string `json:"tmp_download_url"`
		} `json:"tmp_download_urls"`
	}

	body := map[string][]string{"file_tokens": tokens}
	if err := c.call(ctx, "batch temporary urls", http.MethodPost, "/drive/v1/medias/batch_get_tmp_download_url", cred, body, &result); err != nil {
		return nil, err
	}

	urls := make(map[string]string, len(result.TmpDownloadURLs))
	for _, item := range result.TmpDownloadURLs {
		if item.FileToken != "" && item.TmpDownloadURL != "" {
			urls[item.FileToken] = item.TmpDownloadURL
		}
	}
	return urls, nil
}

// maxFetchRedirects bounds the redirects Fetch follows
const maxFetchRedirects = 5

// Fetch downloads an absolute URL, sending the credential when one is given.
// Redirects are followed only within the original host and the platform hosts.
func (c *Client) Fetch(ctx context.Context, target string, cred AccessCredential, limit int64) (*MediaDownload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if cred != "" {
		req.Header.Set("Authorization", cred.Header())
	}

	origin := req.URL.Hostname()
	bounded := *c.httpClient
	bounded.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) >= maxFetchRedirects {
			return fmt.Errorf("stopped after %d redirects", maxFetchRedirects)
		}
		if host := next.URL.Hostname(); host != origin && !IsPlatformHost(host) {
			return fmt.Errorf("redirect to foreign host %s", host)
		}
		return nil
	}

	resp, err := bounded.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, &PermissionError{Operation: "fetch " + target}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{URL: target, Status: resp.StatusCode}
	}

	body, err := readLimited(resp.Body, limit)
	if err != nil {
		return nil, &NetworkError{URL: target, Status: resp.StatusCode, Err: err}
	}

	return &MediaDownload{
		ContentType: MediaType(resp.Header.Get("Content-Type")),
		Body:        body,
	}, nil
}

// MediaType strips parameters from a Content-Type header value
func MediaType(header string) string {
	if header == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
	}
	return mediaType
}

// readLimited reads at most limit bytes and fails when the body is larger
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return body, nil
}
