package cli

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ironsheep/formscan/internal/detection"
	"github.com/ironsheep/formscan/internal/imaging"
	"github.com/ironsheep/formscan/internal/pipeline"
)

func inspectCommand(app *App) *cobra.Command {
	var (
		overlay    string
		regionsDir string
	)

	cmd := &cobra.Command{
		Use:   "inspect <form>",
		Short: "Show how a form is divided into sample quadrants and attribute regions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := app.newExtractor(nil)
			if err != nil {
				return err
			}
			res, err := ex.ExtractFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printExtraction(app, res)

			if overlay != "" {
				if err := writePNG(overlay, ex.Overlay(res)); err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "overlay: %s\n", overlay)
			}
			if regionsDir != "" {
				if err := writeRegions(regionsDir, res); err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "regions: %s\n", regionsDir)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&overlay, "overlay", "o", "", "Write the annotated form to this PNG")
	cmd.Flags().StringVar(&regionsDir, "regions", "", "Write every resized region to this directory")
	return cmd
}

func printExtraction(app *App, res *pipeline.Extraction) {
	b := res.Boundaries
	fmt.Fprintf(app.Out, "%s %dx%d\n", res.Form, res.Raw.Width, res.Raw.Height)
	fmt.Fprintf(app.Out, "boundaries: %s center=(%d,%d)", b.Source, b.Center.X, b.Center.Y)
	if b.Fallback != "" {
		fmt.Fprintf(app.Out, " fallback=%q", b.Fallback)
	}
	fmt.Fprintln(app.Out)
	for _, q := range b.Quadrants {
		fmt.Fprintf(app.Out, "  sample %d: x %d-%d y %d-%d\n", q.SampleID, q.XStart, q.XEnd, q.YStart, q.YEnd)
	}

	minInk := app.Settings.Quality.MinInkFraction
	for _, r := range res.Regions {
		ink := detection.AnalyzeInk(r.Crop, minInk)
		blank := ""
		if ink.Blank {
			blank = " blank"
		}
		fmt.Fprintf(app.Out, "  s%d %-12s %v ink=%.4f%s\n", r.SampleID, r.Attribute.Name, r.Rect, ink.InkFraction, blank)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(app.Out, "  s%d %-12s empty\n", w.SampleID, w.Attribute.Name)
	}

	var stages []string
	for _, st := range []string{pipeline.StageLoad, pipeline.StagePreprocess, pipeline.StageDetect, pipeline.StagePartition} {
		stages = append(stages, fmt.Sprintf("%s=%s", st, res.Timings[st]))
	}
	fmt.Fprintf(app.Out, "timings: %s\n", strings.Join(stages, " "))
}

func writeRegions(dir string, res *pipeline.Extraction) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(res.Form), filepath.Ext(res.Form))
	for _, r := range res.Regions {
		name := fmt.Sprintf("%s_s%d_%s.png", base, r.SampleID, r.Attribute.Name)
		if err := writePNG(filepath.Join(dir, name), r.Image); err != nil {
			return err
		}
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	data, err := imaging.PNGBytes(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
