package ingest

import (
	"io"
	"log/slog"
)

// OrchestratorConfig holds configuration for the ingestion orchestrator
type OrchestratorConfig struct {
	Credentials CredentialSource
	Blocks      BlockSource
	Renderer    BlockRenderer
	Legacy      LegacySource
	// Cache is optional
	Cache  Cache
	Logger *slog.Logger
}

// NewOrchestrator creates a new ingestion orchestrator with configuration
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		credentials: config.Credentials,
		blocks:      config.Blocks,
		renderer:    config.Renderer,
		legacy:      config.Legacy,
		cache:       config.Cache,
		logger:      config.Logger,
	}

	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return o
}
