package cli

import (
	"fmt"

	"resumatch/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for resume extraction and matching",
	Long: `Start an HTTP server that provides REST API endpoints for resume
extraction and matching.

Available endpoints:
- POST /api/v1/resumes: Upload and extract a resume
- GET /api/v1/resumes: List stored resumes
- GET /api/v1/resumes/{id}: Fetch a stored resume
- DELETE /api/v1/resumes/{id}: Delete a stored resume
- POST /api/v1/resumes/{id}/match: Match a stored resume against a job
- POST /api/v1/match: One-shot resume upload and match
- DELETE /api/v1/cache: Invalidate cached match results
- GET /health: Health check endpoint
- GET /stats: Server statistics and rate limiting info

TLS Configuration:
- Use --cert-file and --key-file to serve HTTPS`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("port", "p", "", "Port to listen on (default from config)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from config)")
	serveCmd.Flags().String("cert-file", "", "Server certificate file (PEM, overrides config)")
	serveCmd.Flags().String("key-file", "", "Server private key file (PEM, overrides config)")

	// Bind flags to viper config keys
	bindFlag := func(key, flagName string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(flagName)); err != nil {
			panic(err)
		}
	}

	bindFlag("server.port", "port")
	bindFlag("server.host", "host")
	bindFlag("server.tls.certfile", "cert-file")
	bindFlag("server.tls.keyfile", "key-file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := getConfigFromContext(cmd.Context())
	logger := getLoggerFromContext(cmd.Context())

	p, cleanup, err := buildPipeline(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer cleanup()

	return server.NewServer(cfg, Version, p, logger).Start(cmd.Context())
}
