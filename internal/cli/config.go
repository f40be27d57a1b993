package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/formscan/internal/config"
)

func configCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and check the effective configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if used := config.ConfigUsed(app.Viper); used != "" {
					fmt.Fprintf(app.Out, "# %s\n", used)
				}
				enc := yaml.NewEncoder(app.Out)
				enc.SetIndent(2)
				if err := enc.Encode(app.Settings); err != nil {
					return err
				}
				return enc.Close()
			},
		},
		&cobra.Command{
			Use:   "fingerprint",
			Short: "Print the pipeline version and fingerprint",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				p := app.Settings.Pipeline
				fmt.Fprintf(app.Out, "version %s\nfingerprint %s\n", p.Version, p.Fingerprint())
				return nil
			},
		},
		configCheckCommand(app),
	)
	return cmd
}

// configCheckCommand compares the pipeline manifests of the training store
// and the model directory with the active pipeline.
func configCheckCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the training store and model were built with this pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.Settings
			dirs := []struct{ name, dir string }{
				{"store", s.Store.Root},
				{"model", s.Classifier.ModelDir},
			}
			var mismatch bool
			for _, d := range dirs {
				if d.dir == "" {
					fmt.Fprintf(app.Out, "%-6s not configured\n", d.name)
					continue
				}
				m, err := config.CheckManifest(d.dir, s.Pipeline)
				switch {
				case err != nil:
					mismatch = true
					fmt.Fprintf(app.Out, "%-6s %s: %v\n", d.name, d.dir, err)
				default:
					fmt.Fprintf(app.Out, "%-6s %s: ok (version %s)\n", d.name, d.dir, m.Pipeline.Version)
				}
			}
			if mismatch {
				return fmt.Errorf("pipeline manifests do not match %s", s.Pipeline.ShortFingerprint())
			}
			return nil
		},
	}
}
