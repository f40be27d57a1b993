package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ironsheep/formscan/internal/form"
	"github.com/ironsheep/formscan/internal/session"
)

func predictCommand(app *App) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "predict <form or directory>...",
		Short: "Rate every attribute region with the trained classifier",
		Long: "Extract every attribute region of the given forms and predict its rating. " +
			"Without a usable model every rating is the neutral placeholder, marked degraded.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("unknown output format %q", format)
			}
			ex, err := app.newExtractor(nil)
			if err != nil {
				return err
			}
			deps := session.Deps{
				Extractor:  ex,
				Classifier: app.newClassifier(nil),
				OCR:        app.newOCR(),
			}
			l, err := app.runSession(cmd.Context(), app.sessionOptions(session.ModeInference), deps, args)
			if err != nil {
				return err
			}
			if format == "json" {
				enc := json.NewEncoder(app.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(l.Forms)
			}
			return writeRatings(app.Out, l)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json")
	cmd.Flags().String("model-dir", "", "Directory holding model.tflite and its pipeline manifest")
	bindFlag(cmd, "model-dir", "classifier.model_dir")
	sessionFlags(cmd)
	return cmd
}

// writeRatings prints one row per form and sample with the ratings in
// attribute order. Degraded ratings carry a trailing "?", unrated regions
// are "-".
func writeRatings(w io.Writer, l *session.Log) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range l.Forms {
		if f.Status != session.StatusOK {
			continue
		}
		fmt.Fprintf(tw, "%s", f.Path)
		if f.Header != "" {
			fmt.Fprintf(tw, "\t%q", f.Header)
		}
		fmt.Fprintln(tw)

		var sample form.SampleID
		for _, r := range f.Regions {
			if r.Sample != sample {
				if sample != 0 {
					fmt.Fprintln(tw)
				}
				sample = r.Sample
				fmt.Fprintf(tw, "  sample %d", sample)
			}
			fmt.Fprintf(tw, "\t%s=%s", r.Attribute, ratingCell(r))
		}
		if sample != 0 {
			fmt.Fprintln(tw)
		}
	}
	return tw.Flush()
}

func ratingCell(r session.RegionOutcome) string {
	switch r.Outcome {
	case session.OutcomePredicted:
		return fmt.Sprint(r.Rating)
	case session.OutcomeDegraded:
		return fmt.Sprintf("%d?", r.Rating)
	default:
		return "-"
	}
}
