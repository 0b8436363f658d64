package ingest

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/kfreiman/feishuingest/internal/feishu"
	"github.com/kfreiman/feishuingest/internal/legacy"
	"github.com/kfreiman/feishuingest/internal/render"
)

// Ingestor defines the interface for document ingestion
type Ingestor interface {
	// Ingest reads the document behind a share link and returns it as HTML
	Ingest(ctx context.Context, rawURL string) (*Result, error)
}

// Result is the normalized content of one document
type Result struct {
	Content string       `json:"content"`
	Stats   render.Stats `json:"stats"`
}

// CredentialSource issues access credentials
type CredentialSource interface {
	Credential(ctx context.Context) (feishu.AccessCredential, error)
}

// BlockSource reads block-based documents
type BlockSource interface {
	FetchTitle(ctx context.Context, ref feishu.DocumentReference, cred feishu.AccessCredential) (string, error)
	FetchBlocks(ctx context.Context, ref feishu.DocumentReference, cred feishu.AccessCredential) ([]feishu.Block, error)
}

// BlockRenderer renders fetched blocks
type BlockRenderer interface {
	Render(ctx context.Context, doc render.Document) render.Output
}

// LegacySource reads documents of the legacy dialect as Markdown
type LegacySource interface {
	Read(ctx context.Context, token string, cred feishu.AccessCredential) (*legacy.Output, error)
}

// Orchestrator implements the Ingestor interface
type Orchestrator struct {
	credentials CredentialSource
	blocks      BlockSource
	renderer    BlockRenderer
	legacy      LegacySource
	cache       Cache
	logger      *slog.Logger
}

// WithLogger sets a custom logger for the orchestrator
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// Ingest implements the Ingestor interface.
// Content is all or nothing: any document-level failure returns an error and no content.
// A credential is obtained on every call, including cache hits.
func (o *Orchestrator) Ingest(ctx context.Context, rawURL string) (*Result, error) {
	ref := feishu.ResolveLink(rawURL)
	if ref == nil {
		return nil, &feishu.InvalidLinkError{URL: rawURL, Reason: "not a recognized document link"}
	}

	logger := o.logger.With("doc_kind", string(ref.Kind), "doc_token", ref.Token)

	var ingest func(context.Context, *slog.Logger, feishu.DocumentReference, feishu.AccessCredential) (*Result, bool, error)
	switch {
	case ref.Kind == feishu.KindDocx:
		ingest = o.ingestBlocks
	case ref.Kind.IsLegacy():
		ingest = o.ingestLegacy
	default:
		return nil, &feishu.UnsupportedKindError{Kind: ref.Kind}
	}

	cred, err := o.credentials.Credential(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to obtain credential", "error", err)
		return nil, err
	}

	if cached := o.cached(ctx, logger, ref); cached != nil {
		return cached, nil
	}

	result, cacheable, err := ingest(ctx, logger, *ref, cred)
	if err != nil {
		logger.ErrorContext(ctx, "ingestion failed", "error", err)
		return nil, err
	}

	logger.InfoContext(ctx, "document ingested",
		"bytes", len(result.Content),
		"errors", result.Stats.Errors,
		"unknown", result.Stats.Unknown,
	)

	if cacheable {
		o.store(ctx, logger, *ref, result)
	}
	return result, nil
}

// ingestBlocks runs the block branch: title, blocks, assets, rendering
func (o *Orchestrator) ingestBlocks(ctx context.Context, logger *slog.Logger, ref feishu.DocumentReference, cred feishu.AccessCredential) (*Result, bool, error) {
	title, err := o.blocks.FetchTitle(ctx, ref, cred)
	if err != nil {
		if feishu.IsPermission(err) || ctx.Err() != nil {
			return nil, false, err
		}
		logger.WarnContext(ctx, "failed to fetch document title", "error", err)
		title = feishu.UntitledDocument
	}

	blocks, err := o.blocks.FetchBlocks(ctx, ref, cred)
	if err != nil {
		return nil, false, err
	}

	out := o.renderer.Render(ctx, render.Document{
		Token:      ref.Token,
		Credential: cred,
		Blocks:     blocks,
	})
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	// Proxy URLs carry this request's token and temporary URLs expire
	cacheable := out.Ephemeral == 0
	if !cacheable {
		logger.DebugContext(ctx, "result holds ephemeral asset urls, not caching", "assets", out.Ephemeral)
	}

	// The title heading is not part of the document body and is not counted
	content := fmt.Sprintf("<h1>%s</h1>\n%s", html.EscapeString(title), out.HTML)
	return &Result{Content: content, Stats: out.Stats}, cacheable, nil
}

// ingestLegacy runs the legacy pipeline and converges its Markdown on the same HTML dialect
func (o *Orchestrator) ingestLegacy(ctx context.Context, logger *slog.Logger, ref feishu.DocumentReference, cred feishu.AccessCredential) (*Result, bool, error) {
	out, err := o.legacy.Read(ctx, ref.Token, cred)
	if err != nil {
		return nil, false, err
	}

	content, err := MarkdownToHTML(out.Markdown)
	if err != nil {
		return nil, false, err
	}

	if out.Synthesized {
		logger.WarnContext(ctx, "returning synthesized failure document")
	}
	return &Result{Content: content, Stats: render.ScanHTML(content)}, !out.Synthesized, nil
}

func (o *Orchestrator) cached(ctx context.Context, logger *slog.Logger, ref *feishu.DocumentReference) *Result {
	if o.cache == nil {
		return nil
	}
	result, err := o.cache.Get(ctx, CacheKey(*ref))
	if err != nil {
		logger.WarnContext(ctx, "cache lookup failed", "error", err)
		return nil
	}
	if result != nil {
		logger.DebugContext(ctx, "cache hit")
	}
	return result
}

func (o *Orchestrator) store(ctx context.Context, logger *slog.Logger, ref feishu.DocumentReference, result *Result) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(ctx, CacheKey(ref), result); err != nil {
		logger.WarnContext(ctx, "failed to cache result", "error", err)
	}
}
