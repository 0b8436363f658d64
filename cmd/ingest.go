package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kfreiman/feishuingest/internal/config"
)

var ingestTimeout time.Duration

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <url>",
	Short: "Read one document and print {content, stats} as JSON",
	Long: `Read the document behind a share link and print the normalized HTML
together with its content statistics as JSON on stdout.

Images that cannot be copied locally are emitted as proxy URLs, which need a
running "feishuingest serve" to be displayed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), ingestTimeout)
		defer cancel()

		logger, err := loadLogger()
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		p, err := buildPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer p.Close()

		if p.orchestrator == nil {
			return fmt.Errorf("FEISHU_APP_ID and FEISHU_APP_SECRET must be set")
		}

		result, err := p.orchestrator.Ingest(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(result)
	},
}

func init() {
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", 5*time.Minute, "Overall deadline for the ingestion")
	rootCmd.AddCommand(ingestCmd)
}
