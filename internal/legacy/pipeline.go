// Package legacy reads documents of the older dialect that has no block API.
//
// Two strategies are tried in order: the direct content API, then a
// server-side export job whose docx result is converted and reduced to
// Markdown. When both fail the pipeline answers with a synthesized
// Markdown document that explains the failure.
package legacy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kfreiman/feishuingest/internal/feishu"
)

// FailureTitle heads the synthesized failure document
const FailureTitle = "Document parsing failed"

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollAttempts = 20
)

// exportSlack is added to the polling schedule when no export timeout is configured
const exportSlack = time.Second

// Platform is the subset of the remote API the pipeline needs
type Platform interface {
	LegacyContent(ctx context.Context, token string, cred feishu.AccessCredential) (*feishu.LegacyDocument, error)
	CreateExportTask(ctx context.Context, token string, cred feishu.AccessCredential) (string, error)
	GetExportTask(ctx context.Context, taskID string, cred feishu.AccessCredential) (feishu.ExportTask, error)
	DownloadExport(ctx context.Context, fileURL string, cred feishu.AccessCredential) ([]byte, error)
}

// PipelineConfig holds configuration for the legacy pipeline
type PipelineConfig struct {
	Platform     Platform
	PollInterval time.Duration
	PollAttempts int
	// ExportTimeout bounds the wall-clock time spent polling one export task.
	// Defaults to PollInterval*PollAttempts plus one second.
	ExportTimeout time.Duration
	Logger        *slog.Logger
}

// Pipeline runs the legacy strategies for one document at a time
type Pipeline struct {
	platform      Platform
	pollInterval  time.Duration
	pollAttempts  int
	exportTimeout time.Duration
	converter     *Converter
	logger       *slog.Logger
	strategies   []strategy
}

// strategy is one way of turning a legacy document into Markdown
type strategy struct {
	name string
	run  func(ctx context.Context, token string, cred feishu.AccessCredential) (string, error)
}

// NewPipeline creates a legacy pipeline with defaults for unset fields
func NewPipeline(config PipelineConfig) *Pipeline {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.PollAttempts <= 0 {
		config.PollAttempts = DefaultPollAttempts
	}
	if config.ExportTimeout <= 0 {
		config.ExportTimeout = config.PollInterval*time.Duration(config.PollAttempts) + exportSlack
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	p := &Pipeline{
		platform:      config.Platform,
		pollInterval:  config.PollInterval,
		pollAttempts:  config.PollAttempts,
		exportTimeout: config.ExportTimeout,
		converter:     NewConverter(config.Logger),
		logger:        config.Logger,
	}
	p.strategies = []strategy{
		{name: "direct content", run: p.directContent},
		{name: "export", run: p.export},
	}
	return p
}

// Output is the Markdown produced for one legacy document
type Output struct {
	Markdown string
	Strategy string
	// Synthesized marks the explanatory document returned when every strategy failed
	Synthesized bool
}

// Read returns the document as Markdown.
// Authentication failures, permission failures and cancellation are returned
// as errors; every other failure yields the synthesized failure document.
func (p *Pipeline) Read(ctx context.Context, token string, cred feishu.AccessCredential) (*Output, error) {
	runID := uuid.NewString()
	logger := p.logger.With("doc_token", token, "run_id", runID)

	var (
		failures      []failure
		permissionErr error
	)
	for _, s := range p.strategies {
		markdown, err := s.run(ctx, token, cred)
		if err == nil {
			logger.InfoContext(ctx, "legacy document read", "strategy", s.name)
			return &Output{Markdown: markdown, Strategy: s.name}, nil
		}

		logger.WarnContext(ctx, "legacy strategy failed", "strategy", s.name, "error", err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if feishu.IsAuthentication(err) {
			return nil, err
		}
		if feishu.IsPermission(err) && permissionErr == nil {
			permissionErr = err
		}
		failures = append(failures, failure{strategy: s.name, err: err})
	}

	if permissionErr != nil {
		return nil, permissionErr
	}

	logger.ErrorContext(ctx, "all legacy strategies failed", "failures", len(failures))
	return &Output{Markdown: failureDocument(token, failures), Synthesized: true}, nil
}

// directContent reads the document through the old content API
func (p *Pipeline) directContent(ctx context.Context, token string, cred feishu.AccessCredential) (string, error) {
	doc, err := p.platform.LegacyContent(ctx, token, cred)
	if err != nil {
		return "", err
	}
	return directMarkdown(doc)
}

type failure struct {
	strategy string
	err      error
}

// failureDocument renders the explanatory document returned when no strategy worked
func failureDocument(token string, failures []failure) string {
	var sb strings.Builder

	sb.WriteString("# " + FailureTitle + "\n\n")
	fmt.Fprintf(&sb, "The document `%s` could not be read.\n\n", token)

	sb.WriteString("## Reasons\n\n")
	if len(failures) == 0 {
		sb.WriteString("- no strategy was attempted\n")
	}
	for _, f := range failures {
		fmt.Fprintf(&sb, "- %s: %s\n", f.strategy, oneLine(f.err))
	}

	sb.WriteString("\n## Suggested fixes\n\n")
	sb.WriteString("- Check that the document is shared with the app or visible to the whole organization.\n")
	fmt.Fprintf(&sb, "- Check that the app has been granted the %s scopes.\n", strings.Join(feishu.RequiredScopes, ", "))
	sb.WriteString("- Export the document manually as a Word file and upload it instead.\n")

	return sb.String()
}

func oneLine(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}
