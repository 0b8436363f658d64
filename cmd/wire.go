package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kfreiman/feishuingest/internal/asset"
	"github.com/kfreiman/feishuingest/internal/config"
	"github.com/kfreiman/feishuingest/internal/feishu"
	"github.com/kfreiman/feishuingest/internal/ingest"
	"github.com/kfreiman/feishuingest/internal/legacy"
	"github.com/kfreiman/feishuingest/internal/render"
)

// pipeline is the wired ingestion stack shared by the commands
type pipeline struct {
	client *feishu.Client
	store  asset.Store
	local  *asset.LocalStore // nil when images go to the object store
	cache  *ingest.RedisCache
	// orchestrator is nil when no app credentials are configured
	orchestrator *ingest.Orchestrator
}

// Close releases the connections held by the pipeline
func (p *pipeline) Close() error {
	if p.cache != nil {
		return p.cache.Close()
	}
	return nil
}

// buildPipeline wires every ingestion component from the configuration
func buildPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{}

	p.client = feishu.NewClient(feishu.ClientConfig{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.HTTPTimeout,
		Logger:  logger,
	})

	if cfg.HasObjectStore() {
		store, err := asset.NewObjectStore(ctx, asset.ObjectStoreConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			PublicURL: cfg.MinioPublicURL,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("object store init: %w", err)
		}
		p.store = store
	} else {
		store, err := asset.NewLocalStore(asset.LocalStoreConfig{
			Dir:       cfg.ImageDir,
			URLPrefix: cfg.ImageURLPrefix,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("image store init: %w", err)
		}
		p.store = store
		p.local = store
	}

	if cfg.RedisURL != "" {
		cache, err := ingest.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("result cache init: %w", err)
		}
		p.cache = cache
	}

	if !cfg.HasCredentials() {
		logger.WarnContext(ctx, "FEISHU_APP_ID and FEISHU_APP_SECRET are not set, ingestion is disabled")
		return p, nil
	}

	resolver := asset.NewResolver(asset.ResolverConfig{
		Platform:  p.client,
		Store:     p.store,
		ProxyPath: cfg.ProxyPath,
		BatchSize: cfg.AssetBatchSize,
		Logger:    logger,
	})

	orchestratorConfig := ingest.OrchestratorConfig{
		Credentials: feishu.NewCredentialProvider(p.client, feishu.Credentials{
			AppID:     cfg.AppID,
			AppSecret: cfg.AppSecret,
		}),
		Blocks:   feishu.NewBlockFetcher(p.client, cfg.PageSize),
		Renderer: render.NewRenderer(resolver).WithLogger(logger),
		Legacy: legacy.NewPipeline(legacy.PipelineConfig{
			Platform:      p.client,
			PollInterval:  cfg.PollInterval,
			PollAttempts:  cfg.PollAttempts,
			ExportTimeout: cfg.ExportTimeout,
			Logger:        logger,
		}),
		Logger: logger,
	}
	// A nil *RedisCache must not end up inside the interface
	if p.cache != nil {
		orchestratorConfig.Cache = p.cache
	}
	p.orchestrator = ingest.NewOrchestrator(orchestratorConfig)

	return p, nil
}
