// Package render converts platform blocks into the normalized HTML dialect.
package render

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"strings"

	"github.com/kfreiman/feishuingest/internal/asset"
	"github.com/kfreiman/feishuingest/internal/feishu"
)

// AssetResolver resolves image and file references before rendering
type AssetResolver interface {
	ResolveAll(ctx context.Context, reqs []asset.Request) map[string]asset.Resolution
}

// Document is one rendering input
type Document struct {
	Token      string
	Credential feishu.AccessCredential
	Blocks     []feishu.Block
}

// Output is the result of one Render call
type Output struct {
	HTML  string
	Stats Stats
	// Ephemeral counts assets whose URLs expire or embed the bearer token
	Ephemeral int
}

// Renderer turns a block sequence into HTML, one fragment per block in document order
type Renderer struct {
	assets AssetResolver
	logger *slog.Logger
}

// NewRenderer creates a renderer; a nil resolver renders every asset as a failure placeholder
func NewRenderer(assets AssetResolver) *Renderer {
	return &Renderer{
		assets: assets,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithLogger sets the logger for the renderer
func (r *Renderer) WithLogger(logger *slog.Logger) *Renderer {
	r.logger = logger
	return r
}

// state is the mutable context of one Render call
type state struct {
	ctx    context.Context
	stats  *Stats
	assets map[string]asset.Resolution
}

// Render renders every block and returns the HTML with its statistics.
// A block whose handler fails is replaced by an error placeholder; the walk always continues.
func (r *Renderer) Render(ctx context.Context, doc Document) Output {
	var stats Stats
	st := &state{
		ctx:    ctx,
		stats:  &stats,
		assets: r.resolveAssets(ctx, doc),
	}

	var (
		sb       strings.Builder
		openList string
	)
	for _, block := range doc.Blocks {
		fragment, list := r.renderBlock(st, block)

		// Adjacent items of the same list type share one list element
		if list != openList {
			if openList != "" {
				fmt.Fprintf(&sb, "</%s>\n", openList)
			}
			if list != "" {
				fmt.Fprintf(&sb, "<%s>\n", list)
				stats.Lists++
			}
			openList = list
		}

		if fragment != "" {
			sb.WriteString(fragment)
			sb.WriteString("\n")
		}
	}
	if openList != "" {
		fmt.Fprintf(&sb, "</%s>\n", openList)
	}

	r.logger.DebugContext(ctx, "document rendered",
		"doc_token", doc.Token,
		"blocks", len(doc.Blocks),
		"errors", stats.Errors,
		"unknown", stats.Unknown,
	)

	out := Output{HTML: sb.String(), Stats: stats}
	for _, res := range st.assets {
		if res.Ephemeral() {
			out.Ephemeral++
		}
	}
	return out
}

// resolveAssets resolves all image and file references of the document up front
func (r *Renderer) resolveAssets(ctx context.Context, doc Document) map[string]asset.Resolution {
	var reqs []asset.Request
	for _, b := range doc.Blocks {
		switch {
		case b.Kind == feishu.BlockImage && b.Image != nil:
			reqs = append(reqs, asset.Request{
				Key: b.ID, Kind: asset.KindImage, Token: b.Image.Token, URL: b.Image.URL,
				DocToken: doc.Token, Credential: doc.Credential,
			})
		case b.Kind == feishu.BlockFile && b.File != nil:
			reqs = append(reqs, asset.Request{
				Key: b.ID, Kind: asset.KindFile, Token: b.File.Token, URL: b.File.URL,
				DocToken: doc.Token, Credential: doc.Credential,
			})
		}
	}
	if len(reqs) == 0 || r.assets == nil {
		return map[string]asset.Resolution{}
	}
	return r.assets.ResolveAll(ctx, reqs)
}

// renderBlock renders one block, isolating panics to that block.
// list names the list element the fragment belongs in, if any.
func (r *Renderer) renderBlock(st *state, b feishu.Block) (fragment, list string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(st.ctx, "block render failed",
				"block_id", b.ID,
				"block_kind", b.Kind.String(),
				"raw_type", b.RawType,
				"panic", fmt.Sprint(rec),
			)
			st.stats.Errors++
			fragment = errorPlaceholder(b.Kind.String(), b.ID, "this block could not be rendered")
			list = ""
		}
	}()

	if b.DecodeErr != nil {
		r.logger.ErrorContext(st.ctx, "block payload malformed",
			"block_id", b.ID,
			"raw_type", b.RawType,
			"error", b.DecodeErr,
		)
		st.stats.Errors++
		return errorPlaceholder("malformed", b.ID, "this block could not be decoded"), ""
	}

	handler, ok := handlers[b.Kind]
	if !ok {
		handler = renderUnknown
	}
	return handler(st, b), listElement(b.Kind)
}

func listElement(kind feishu.BlockKind) string {
	switch kind {
	case feishu.BlockBullet:
		return "ul"
	case feishu.BlockOrdered:
		return "ol"
	default:
		return ""
	}
}

// placeholder renders a typed stand-in for blocks without a faithful HTML shape
func placeholder(kind, id, label string) string {
	return fmt.Sprintf(`<div class="feishu-placeholder" data-block-kind="%s" data-block-id="%s">[%s]</div>`,
		html.EscapeString(kind), html.EscapeString(id), html.EscapeString(label))
}

func errorPlaceholder(kind, id, reason string) string {
	return fmt.Sprintf(`<div class="feishu-placeholder feishu-error" data-block-kind="%s" data-block-id="%s">[%s]</div>`,
		html.EscapeString(kind), html.EscapeString(id), html.EscapeString(reason))
}
