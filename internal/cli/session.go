package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ironsheep/formscan/internal/logger"
	"github.com/ironsheep/formscan/internal/session"
)

// sessionFlags are shared by train and predict.
func sessionFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("workers", "w", 0, "Forms processed concurrently")
	cmd.Flags().BoolP("recursive", "r", false, "Descend into subdirectories")
	cmd.Flags().String("log-dir", "", "Directory for the session log")
	cmd.Flags().Bool("skip-blank", false, "Flag regions without ink instead of rating them")
	bindFlag(cmd, "workers", "session.workers")
	bindFlag(cmd, "recursive", "session.recursive")
	bindFlag(cmd, "log-dir", "session.log_dir")
	bindFlag(cmd, "skip-blank", "quality.skip_blank")
}

func (app *App) sessionOptions(mode session.Mode) session.Options {
	s := app.Settings
	return session.Options{
		Mode:           mode,
		Workers:        s.Session.Workers,
		LogDir:         s.Session.LogDir,
		Recursive:      s.Session.Recursive,
		SkipBlank:      s.Quality.SkipBlank,
		MinInkFraction: s.Quality.MinInkFraction,
	}
}

// runSession wires the index and runs s over inputs, then prints the
// summary line and the log location.
func (app *App) runSession(ctx context.Context, opts session.Options, deps session.Deps, inputs []string) (*session.Log, error) {
	db, err := app.openDatastore()
	if err != nil {
		app.Log.Warn("session index unavailable", logger.Error(err))
	}
	if db != nil {
		defer db.Close()
		deps.Index = db
	}
	deps.Log = app.Log

	s, err := session.New(opts, deps)
	if err != nil {
		return nil, err
	}
	l, err := s.Run(ctx, inputs...)
	if err != nil {
		return nil, err
	}
	printSummary(app.Out, l)
	return l, nil
}

func printSummary(w io.Writer, l *session.Log) {
	fmt.Fprintf(w, "session %s: %s\n", l.SessionID, l.Summary())
	if l.Path != "" {
		fmt.Fprintf(w, "log: %s\n", l.Path)
	}
	for _, f := range l.Forms {
		if f.Status == session.StatusFailed {
			fmt.Fprintf(w, "  failed %s: %s\n", f.Path, f.Error)
		}
	}
}
