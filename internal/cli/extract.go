package cli

import (
	"context"
	"fmt"

	"resumatch/internal/common"
	"resumatch/internal/types"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract [resume-file]",
	Short: "Extract a structured candidate record from a resume",
	Long: `Extract a structured candidate record from a resume file.

The resume is decoded (PDF or plain text), normalized, and run through the
configured extraction provider. The resulting record lists skills, work
experience, and education, and is stored for later match operations.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		// Apply default format if not specified
		if extractConfig.OutputFormat == "" {
			extractConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(extractConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runExtract,
}

var extractConfig common.CommandConfig

func init() {
	extractCmd.Flags().StringVarP(&extractConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().StringVar(&extractConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = extractCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	p, cleanup, err := buildPipeline(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer cleanup()

	createInput := func(docs []types.RawDocument) (types.RawDocument, error) {
		if len(docs) != 1 {
			return types.RawDocument{}, fmt.Errorf("expected 1 resume file, got %d", len(docs))
		}
		return docs[0], nil
	}

	logDetails := func(doc types.RawDocument, cmdCfg common.CommandConfig) {
		logger.Info("Starting resume extraction",
			"file", doc.Filename,
			"size_bytes", len(doc.Bytes),
			"output_format", cmdCfg.OutputFormat)
	}

	extractOperation := func(ctx context.Context, doc types.RawDocument) (*types.CandidateRecord, error) {
		stored, err := p.ProcessDocument(ctx, doc)
		if err != nil {
			return nil, err
		}
		logger.Info("Resume stored",
			"id", stored.ID,
			"fingerprint", string(stored.Fingerprint))
		return stored.Record, nil
	}

	err = common.RunPipelineCommand(
		cmd.Context(),
		logger,
		extractConfig,
		args,
		createInput,
		extractOperation,
		logDetails,
	)

	if err != nil {
		return fmt.Errorf("failed to extract resume: %w", err)
	}
	logger.Info("Resume extraction completed successfully")
	return nil
}
