package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"resumatch/internal/common"
	"resumatch/internal/types"

	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match [resume-file] [job-file]",
	Short: "Match a resume against a job requirement",
	Long: `Match a resume against a job requirement and produce a scored report.

The resume is decoded, normalized, and extracted into a candidate record,
then scored against the job requirement from the given JSON file. The report
includes per-dimension scores, matched and missing skills, and a hiring
recommendation. Repeated runs with the same resume and job are served from
the result cache.`,
	Args: cobra.ExactArgs(2),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfigFromContext(cmd.Context())
		if matchConfig.OutputFormat == "" {
			matchConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(matchConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runMatch,
}

var matchConfig common.CommandConfig

// matchInput pairs a resume document with the job it is scored against.
type matchInput struct {
	Resume types.RawDocument
	Job    types.JobRequirement
}

func init() {
	matchCmd.Flags().StringVarP(&matchConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	matchCmd.Flags().StringVar(&matchConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")

	_ = matchCmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg := getConfigFromContext(cmd.Context())
		return common.GetSupportedFormats(cfg.App.SupportedFormats), cobra.ShellCompDirectiveNoFileComp
	})
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	p, cleanup, err := buildPipeline(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer cleanup()

	createInput := func(docs []types.RawDocument) (matchInput, error) {
		if len(docs) != 2 {
			return matchInput{}, fmt.Errorf("expected resume and job files, got %d", len(docs))
		}
		var job types.JobRequirement
		if err := json.Unmarshal(docs[1].Bytes, &job); err != nil {
			return matchInput{}, fmt.Errorf("failed to parse job file %s: %w", docs[1].Filename, err)
		}
		return matchInput{Resume: docs[0], Job: job}, nil
	}

	logDetails := func(input matchInput, cmdCfg common.CommandConfig) {
		logger.Info("Starting resume match",
			"resume_file", input.Resume.Filename,
			"job_title", input.Job.Title,
			"required_skills", len(input.Job.Skills),
			"output_format", cmdCfg.OutputFormat)
	}

	matchOperation := func(ctx context.Context, input matchInput) (*types.MatchResult, error) {
		return p.MatchDocument(ctx, input.Resume, &input.Job)
	}

	err = common.RunPipelineCommand(
		cmd.Context(),
		logger,
		matchConfig,
		args,
		createInput,
		matchOperation,
		logDetails,
	)

	if err != nil {
		return fmt.Errorf("failed to match resume: %w", err)
	}
	logger.Info("Resume match completed successfully")
	return nil
}
