package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kfreiman/feishuingest/internal/feishu"
)

// Kind distinguishes images from attached files
type Kind int

const (
	KindImage Kind = iota
	KindFile
)

// Request describes one image or file reference to resolve
type Request struct {
	Key        string // caller-chosen identifier, usually the block id
	Kind       Kind
	Token      string
	URL        string
	DocToken   string
	Credential feishu.AccessCredential
}

// Outcome tells how a reference was resolved
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeDirect
	OutcomeLocal
	OutcomeProxy
	OutcomeTemporary
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDirect:
		return "direct"
	case OutcomeLocal:
		return "local"
	case OutcomeProxy:
		return "proxy"
	case OutcomeTemporary:
		return "temporary"
	default:
		return "failed"
	}
}

// Resolution is the displayable URL for one reference, or the reason there is none
type Resolution struct {
	Outcome Outcome
	URL     string
	Err     error
}

// OK reports whether the resolution produced a usable URL
func (r Resolution) OK() bool {
	return r.Outcome != OutcomeFailed && r.URL != ""
}

// Ephemeral reports whether the URL expires or embeds the bearer token
func (r Resolution) Ephemeral() bool {
	return r.Outcome == OutcomeTemporary || r.Outcome == OutcomeProxy
}

// Platform is the part of the platform client the resolver needs
type Platform interface {
	BaseURL() string
	DownloadMedia(ctx context.Context, token string, cred feishu.AccessCredential) (*feishu.MediaDownload, error)
	BatchTemporaryURLs(ctx context.Context, tokens []string, cred feishu.AccessCredential) (map[string]string, error)
}

// errNotApplicable marks a strategy that has nothing to do for a request
var errNotApplicable = errors.New("not applicable")

// ResolverConfig holds configuration for the asset resolver
type ResolverConfig struct {
	Platform    Platform
	Store       Store        // Optional: without a store downloaded bytes cannot be persisted
	ProxyPath   string       // pass-through endpoint, e.g. /api/proxy-image
	BatchSize   int          // tokens per temporary-URL call, capped at feishu.MaxBatchTokens
	Concurrency int          // parallel downloads and batches
	Logger      *slog.Logger // Optional: defaults to a discard logger
}

// Resolver turns image and file references into displayable URLs.
// Strategies run in order until one succeeds: direct URL, single media download,
// batched temporary URL, proxy URL. Download redirects count as temporary URLs.
type Resolver struct {
	platform    Platform
	store       Store
	proxyPath   string
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

// NewResolver creates a resolver
func NewResolver(config ResolverConfig) *Resolver {
	if config.ProxyPath == "" {
		config.ProxyPath = "/api/proxy-image"
	}
	if config.BatchSize <= 0 || config.BatchSize > feishu.MaxBatchTokens {
		config.BatchSize = feishu.MaxBatchTokens
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Resolver{
		platform:    config.Platform,
		store:       config.Store,
		proxyPath:   config.ProxyPath,
		batchSize:   config.BatchSize,
		concurrency: config.Concurrency,
		logger:      config.Logger,
	}
}

// WithLogger sets the logger for the resolver
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	r.logger = logger
	return r
}

type cacheKey struct {
	token string
	doc   string
}

// run holds the state of one ResolveAll call
type run struct {
	mu       sync.Mutex
	results  map[cacheKey]Resolution
	reasons  map[cacheKey][]string
	tmpURLs  map[string]string
	batchErr error
}

func newRun() *run {
	return &run{
		results: make(map[cacheKey]Resolution),
		reasons: make(map[cacheKey][]string),
		tmpURLs: make(map[string]string),
	}
}

func (rn *run) fail(key cacheKey, stage string, err error) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.reasons[key] = append(rn.reasons[key], fmt.Sprintf("%s: %v", stage, err))
}

func (rn *run) done(key cacheKey, res Resolution) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.results[key] = res
}

func (rn *run) reason(key cacheKey) string {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return strings.Join(rn.reasons[key], "; ")
}

func (rn *run) result(key cacheKey) (Resolution, bool) {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	res, ok := rn.results[key]
	return res, ok
}

type strategy struct {
	name string
	fn   func(ctx context.Context, rn *run, req Request) (Resolution, error)
}

// Resolve resolves a single reference
func (r *Resolver) Resolve(ctx context.Context, req Request) Resolution {
	return r.ResolveAll(ctx, []Request{req})[req.Key]
}

// ResolveAll resolves every request and returns the resolutions keyed by Request.Key.
// Identical (token, document) pairs are resolved once. Downloads run in parallel and
// the temporary-URL step issues one call per batch, batches in parallel.
func (r *Resolver) ResolveAll(ctx context.Context, reqs []Request) map[string]Resolution {
	rn := newRun()

	// Deduplicate by (token, document); URL-only requests are keyed by URL
	unique := make(map[cacheKey]Request)
	var order []cacheKey
	for _, req := range reqs {
		key := keyOf(req)
		if _, ok := unique[key]; ok {
			continue
		}
		unique[key] = req
		order = append(order, key)
	}

	early := []strategy{
		{"direct", r.direct},
		{"media download", r.download},
	}
	late := []strategy{
		{"temporary url", r.temporaryURL},
		{"proxy", r.proxy},
	}

	// Direct URLs and single downloads
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, key := range order {
		req := unique[key]
		g.Go(func() error {
			r.runStrategies(gctx, rn, key, req, early)
			return nil
		})
	}
	_ = g.Wait()

	// Batched temporary URLs for everything still pending
	var pending []cacheKey
	for _, key := range order {
		if _, ok := rn.result(key); !ok {
			pending = append(pending, key)
		}
	}
	r.prefetchTemporaryURLs(ctx, rn, pending, unique)

	for _, key := range pending {
		r.runStrategies(ctx, rn, key, unique[key], late)
		if _, ok := rn.result(key); !ok {
			req := unique[key]
			reason := rn.reason(key)
			if reason == "" {
				reason = "no token or url"
			}
			rn.done(key, Resolution{
				Outcome: OutcomeFailed,
				Err:     &feishu.AssetResolutionError{Token: req.Token, Reason: reason},
			})
		}
	}

	resolved := make(map[string]Resolution, len(reqs))
	for _, req := range reqs {
		res, _ := rn.result(keyOf(req))
		resolved[req.Key] = res

		r.logger.DebugContext(ctx, "asset resolved",
			"key", req.Key,
			"token", req.Token,
			"outcome", res.Outcome.String(),
		)
	}
	return resolved
}

func keyOf(req Request) cacheKey {
	if req.Token == "" {
		return cacheKey{token: "url:" + req.URL + "#" + req.Key, doc: req.DocToken}
	}
	return cacheKey{token: req.Token, doc: req.DocToken}
}

// runStrategies tries each strategy until one resolves the request
func (r *Resolver) runStrategies(ctx context.Context, rn *run, key cacheKey, req Request, strategies []strategy) {
	for _, s := range strategies {
		if ctx.Err() != nil {
			rn.fail(key, s.name, ctx.Err())
			return
		}
		res, err := s.fn(ctx, rn, req)
		if err == nil {
			rn.done(key, res)
			return
		}
		if !errors.Is(err, errNotApplicable) {
			r.logger.WarnContext(ctx, "asset strategy failed",
				"strategy", s.name,
				"token", req.Token,
				"error", err,
			)
			rn.fail(key, s.name, err)
		}
	}
}

// direct uses a literal data: URI or absolute http(s) URL as is
func (r *Resolver) direct(_ context.Context, _ *run, req Request) (Resolution, error) {
	if isDirectURL(req.URL) {
		return Resolution{Outcome: OutcomeDirect, URL: req.URL}, nil
	}
	if isDirectURL(req.Token) {
		return Resolution{Outcome: OutcomeDirect, URL: req.Token}, nil
	}
	return Resolution{}, errNotApplicable
}

// download calls the single-asset endpoint; a redirect target is used directly,
// image bytes are persisted to the store
func (r *Resolver) download(ctx context.Context, _ *run, req Request) (Resolution, error) {
	if req.Kind != KindImage || req.Token == "" || r.platform == nil {
		return Resolution{}, errNotApplicable
	}

	media, err := r.platform.DownloadMedia(ctx, req.Token, req.Credential)
	if err != nil {
		return Resolution{}, err
	}
	if media.RedirectURL != "" && isDirectURL(media.RedirectURL) {
		return Resolution{Outcome: OutcomeTemporary, URL: media.RedirectURL}, nil
	}
	if r.store == nil {
		return Resolution{}, fmt.Errorf("no store configured for downloaded bytes")
	}

	localURL, err := r.store.Save(ctx, media.Body, media.ContentType)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{Outcome: OutcomeLocal, URL: localURL}, nil
}

// temporaryURL looks up the batch-issued URL, asking for a one-token batch if the prefetch missed it
func (r *Resolver) temporaryURL(ctx context.Context, rn *run, req Request) (Resolution, error) {
	if req.Token == "" || r.platform == nil {
		return Resolution{}, errNotApplicable
	}

	rn.mu.Lock()
	tmp, ok := rn.tmpURLs[req.Token]
	batchErr := rn.batchErr
	rn.mu.Unlock()

	if !ok && batchErr != nil {
		urls, err := r.platform.BatchTemporaryURLs(ctx, []string{req.Token}, req.Credential)
		if err != nil {
			return Resolution{}, err
		}
		tmp, ok = urls[req.Token]
	}
	if !ok || !isDirectURL(tmp) {
		return Resolution{}, fmt.Errorf("no temporary url issued")
	}
	return Resolution{Outcome: OutcomeTemporary, URL: tmp}, nil
}

// proxy defers the authenticated fetch to the pass-through endpoint
func (r *Resolver) proxy(_ context.Context, _ *run, req Request) (Resolution, error) {
	source := req.URL
	if source == "" && req.Token != "" && r.platform != nil {
		source = fmt.Sprintf("%s/drive/v1/medias/%s/download", r.platform.BaseURL(), url.PathEscape(req.Token))
	}
	if source == "" {
		return Resolution{}, errNotApplicable
	}
	return Resolution{Outcome: OutcomeProxy, URL: ProxyURL(r.proxyPath, source, req.Credential)}, nil
}

// prefetchTemporaryURLs issues batched temporary-URL calls for the pending tokens
func (r *Resolver) prefetchTemporaryURLs(ctx context.Context, rn *run, pending []cacheKey, unique map[cacheKey]Request) {
	if r.platform == nil || len(pending) == 0 {
		return
	}

	// Group tokens by credential; a run normally has one
	byCred := make(map[feishu.AccessCredential][]string)
	seen := make(map[string]bool)
	for _, key := range pending {
		req := unique[key]
		if req.Token == "" || isDirectURL(req.Token) || seen[req.Token] {
			continue
		}
		seen[req.Token] = true
		byCred[req.Credential] = append(byCred[req.Credential], req.Token)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for cred, tokens := range byCred {
		for _, batch := range chunk(tokens, r.batchSize) {
			g.Go(func() error {
				urls, err := r.platform.BatchTemporaryURLs(gctx, batch, cred)

				rn.mu.Lock()
				defer rn.mu.Unlock()
				if err != nil {
					rn.batchErr = err
					r.logger.WarnContext(gctx, "temporary url batch failed",
						"tokens", len(batch),
						"error", err,
					)
					return nil
				}
				for tok, u := range urls {
					rn.tmpURLs[tok] = u
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

func chunk(items []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

// ProxyURL builds the pass-through URL for source, carrying the bare bearer token
func ProxyURL(proxyPath, source string, cred feishu.AccessCredential) string {
	query := url.Values{}
	query.Set("url", source)
	if token := cred.Token(); token != "" {
		query.Set("token", token)
	}
	return proxyPath + "?" + query.Encode()
}

func isDirectURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
