package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kfreiman/feishuingest/internal/config"
	"github.com/kfreiman/feishuingest/internal/server"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, image proxy and MCP server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger, err := loadLogger()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load command config: %v\n", err)
			os.Exit(1)
		}

		cfg, err := config.Load()
		if err != nil {
			logger.ErrorContext(ctx, "failed to load config",
				"error", err,
			)
			os.Exit(1)
		}

		logger.InfoContext(ctx, "server starting",
			"port", cfg.Port,
			"base_url", cfg.BaseURL,
			"image_dir", cfg.ImageDir,
			"object_store", cfg.HasObjectStore(),
			"cache", cfg.RedisURL != "",
		)

		p, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			logger.ErrorContext(ctx, "failed to build ingestion pipeline",
				"error", err,
			)
			os.Exit(1)
		}
		defer p.Close()

		serverConfig := server.Config{
			Port:           cfg.Port,
			ProxyPath:      cfg.ProxyPath,
			ImageURLPrefix: cfg.ImageURLPrefix,
			ProxyHosts:     proxyHosts(cfg),
			Fetcher:        p.client,
			Store:          p.store,
			Logger:         logger,
		}
		if p.orchestrator != nil {
			serverConfig.Ingestor = p.orchestrator
		}
		if p.local != nil {
			serverConfig.Images = p.local.Handler()
		}
		if p.cache != nil {
			serverConfig.Cache = p.cache
		}

		srv, err := server.NewServer(serverConfig)
		if err != nil {
			logger.ErrorContext(ctx, "failed to create server",
				"error", err,
			)
			os.Exit(1)
		}

		if err := srv.ListenAndServe(ctx); err != nil {
			logger.ErrorContext(ctx, "server stopped",
				"error", err,
			)
			os.Exit(1)
		}
	},
}

// proxyHosts adds the API host to the configured extra proxy hosts
func proxyHosts(cfg config.Config) []string {
	hosts := append([]string{}, cfg.ProxyHosts...)
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Hostname() != "" {
		hosts = append(hosts, u.Hostname())
	}
	return hosts
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
