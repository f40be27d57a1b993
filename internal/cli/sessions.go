package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ironsheep/formscan/internal/datastore"
	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
)

func sessionsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Query the index of past sessions",
	}
	cmd.AddCommand(sessionsListCommand(app), sessionsFailedCommand(app), sessionsExamplesCommand(app))
	return cmd
}

// withDatastore opens the index for the duration of fn.
func (app *App) withDatastore(fn func(db *datastore.Store) error) error {
	db, err := app.openDatastore()
	if err != nil {
		return err
	}
	if db == nil {
		return errors.Newf("datastore is disabled").
			Component("cli").
			Category(errors.CategoryConfiguration).
			Build()
	}
	defer db.Close()
	return fn(db)
}

func sessionsListCommand(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withDatastore(func(db *datastore.Store) error {
				records, err := db.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tMODE\tSTARTED\tFORMS\tPROCESSED\tFAILED\tSKIPPED\tFLAGGED\tDEGRADED\tEXAMPLES\tCANCELLED")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%t\n",
						shortID(r.SessionID), r.Mode, r.StartedAt.Local().Format("2006-01-02 15:04"),
						r.Forms, r.Processed, r.Failed, r.Skipped, r.Flagged, r.Degraded, r.Examples, r.Cancelled)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show")
	return cmd
}

func sessionsFailedCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "failed <session id>",
		Short: "Print the forms that failed in a session, one path per line",
		Long: "Print the forms that failed in a session. The id may be any unique prefix. " +
			"The output can be passed back to train or predict to re-run them.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withDatastore(func(db *datastore.Store) error {
				forms, err := db.FailedForms(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, f := range forms {
					fmt.Fprintln(app.Out, f.Path)
				}
				return nil
			})
		},
	}
}

func sessionsExamplesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Count training examples written per rating across all indexed sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withDatastore(func(db *datastore.Store) error {
				counts, err := db.RatingCounts(cmd.Context())
				if err != nil {
					return err
				}
				total := 0
				for r := form.MinRating; r <= form.MaxRating; r++ {
					fmt.Fprintf(app.Out, "%d\t%d\n", r, counts[int(r)])
					total += counts[int(r)]
				}
				fmt.Fprintf(app.Out, "total\t%d\n", total)
				return nil
			})
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
