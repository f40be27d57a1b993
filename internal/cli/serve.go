package cli

import (
	"github.com/spf13/cobra"

	"github.com/ironsheep/formscan/internal/httpserver"
	"github.com/ironsheep/formscan/internal/logger"
	"github.com/ironsheep/formscan/internal/server"
)

func serveCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMetrics()
			if err != nil {
				return err
			}
			ex, err := app.newExtractor(m)
			if err != nil {
				return err
			}
			opts := httpserver.Options{Metrics: m}

			db, err := app.openDatastore()
			if err != nil {
				app.Log.Warn("session index unavailable", logger.Error(err))
			}
			if db != nil {
				defer db.Close()
				opts.Sessions = db
			}

			srv := httpserver.New(ex, app.newClassifier(m), opts, app.Log)
			return srv.Run(cmd.Context(), app.Settings.Server.Listen)
		},
	}

	cmd.Flags().StringP("listen", "l", "", "Listen address")
	bindFlag(cmd, "listen", "server.listen")
	return cmd
}

func mcpCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the form tools to an MCP client over stdio",
		Long: "Run a Model Context Protocol server on stdin and stdout. " +
			"Logs go to stderr so they never mix with protocol messages.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := app.newExtractor(nil)
			if err != nil {
				return err
			}
			srv := server.New(ex, app.newClassifier(nil), server.Options{
				OCR: app.newOCR(),
				In:  cmd.InOrStdin(),
				Out: cmd.OutOrStdout(),
			}, app.Log)
			app.Log.Info("mcp server ready", logger.String("version", server.Version))
			return srv.Run(cmd.Context())
		},
	}
}
