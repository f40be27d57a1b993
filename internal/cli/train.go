package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ironsheep/formscan/internal/augment"
	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/labeler"
	"github.com/ironsheep/formscan/internal/session"
	"github.com/ironsheep/formscan/internal/store"
)

func trainCommand(app *App) *cobra.Command {
	var answers string

	cmd := &cobra.Command{
		Use:   "train <form or directory>...",
		Short: "Label regions and grow the training example store",
		Long: "Extract every attribute region of the given forms, ask for its rating and " +
			"append the region and its augmented variants to the training store.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.Settings
			ex, err := app.newExtractor(nil)
			if err != nil {
				return err
			}
			st, err := store.Open(s.Store.Root, s.Pipeline)
			if err != nil {
				return err
			}

			var lab form.Labeler = labeler.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout())
			if answers != "" {
				key, err := labeler.LoadAnswerKey(answers)
				if err != nil {
					return err
				}
				lab = key
			}

			deps := session.Deps{
				Extractor: ex,
				Labeler:   lab,
				Store:     st,
				Augmenter: augment.New(s.Pipeline.Augmentation),
				OCR:       app.newOCR(),
			}
			l, err := app.runSession(cmd.Context(), app.sessionOptions(session.ModeTraining), deps, args)
			if err != nil {
				return err
			}

			counts, err := st.Counts()
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "store %s:", st.Root())
			for r := form.MinRating; r <= form.MaxRating; r++ {
				fmt.Fprintf(app.Out, " %d=%d", r, counts[r])
			}
			fmt.Fprintf(app.Out, " (+%d this session)\n", l.Totals.Examples)
			return nil
		},
	}

	cmd.Flags().StringVar(&answers, "answers", "", "YAML answer key instead of the interactive prompt")
	cmd.Flags().String("store", "", "Training store root")
	bindFlag(cmd, "store", "store.root")
	sessionFlags(cmd)
	return cmd
}
