// Package labeler provides form.Labeler implementations: an interactive
// console prompt and a YAML answer key for unattended training runs.
package labeler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/formscan/internal/errors"
	"github.com/ironsheep/formscan/internal/form"
)

// ErrQuit is returned when the operator ends the session from the prompt.
var ErrQuit = form.ErrLabelingStopped

// Console prompts on out and reads answers from in, one per line:
// 1-9 rates, "s" skips, "f" flags a quality issue, "q" quits.
type Console struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewConsole returns a console labeler.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewScanner(in), out: out}
}

// RequestRating blocks until the operator answers. Unrecognized input
// re-prompts. Cancellation is observed between lines.
func (c *Console) RequestRating(ctx context.Context, ref form.RegionRef, preview string) (form.Resolution, error) {
	for {
		if err := ctx.Err(); err != nil {
			return form.Resolution{}, err
		}
		fmt.Fprintf(c.out, "\n%s\n", ref)
		if preview != "" {
			fmt.Fprintf(c.out, "  preview: %s\n", preview)
		}
		fmt.Fprint(c.out, "  rating [1-9], s=skip, f=flag quality issue, q=quit: ")

		if !c.in.Scan() {
			if err := c.in.Err(); err != nil {
				return form.Resolution{}, labelingError(err, ref)
			}
			return form.Resolution{}, ErrQuit
		}
		answer := strings.ToLower(strings.TrimSpace(c.in.Text()))
		switch answer {
		case "s", "skip":
			return form.Skip(), nil
		case "f", "flag":
			return form.Flag(), nil
		case "q", "quit":
			return form.Resolution{}, ErrQuit
		}
		r, err := form.ParseRating(answer)
		if err != nil {
			fmt.Fprintf(c.out, "  %v\n", err)
			continue
		}
		return form.RatedAs(r), nil
	}
}

// AnswerKey answers from a prepared YAML document:
//
//	forms:
//	  form_001.jpg:
//	    sample_1: [7, 5, skip, flag, 3]
//
// Forms are matched by base name. Values are listed in attribute order.
// Anything not in the key is skipped.
type AnswerKey struct {
	Forms map[string]map[string][]string `yaml:"forms"`
}

// LoadAnswerKey reads an answer key file.
func LoadAnswerKey(path string) (*AnswerKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("labeler").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	key := &AnswerKey{}
	if err := yaml.Unmarshal(data, key); err != nil {
		return nil, errors.New(fmt.Errorf("parse answer key: %w", err)).
			Component("labeler").
			Category(errors.CategoryLabeling).
			FileContext(path).
			Build()
	}
	return key, key.validate()
}

func (k *AnswerKey) validate() error {
	for name, samples := range k.Forms {
		for sample, answers := range samples {
			for i, a := range answers {
				if _, err := parseAnswer(a); err != nil {
					return errors.New(fmt.Errorf("%s %s[%d]: %w", name, sample, i, err)).
						Component("labeler").
						Category(errors.CategoryLabeling).
						Build()
				}
			}
		}
	}
	return nil
}

func (k *AnswerKey) RequestRating(ctx context.Context, ref form.RegionRef, _ string) (form.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return form.Resolution{}, err
	}
	samples, ok := k.Forms[filepath.Base(ref.Form)]
	if !ok {
		return form.Skip(), nil
	}
	answers := samples[ref.Sample.Key()]
	if ref.Attribute.Index >= len(answers) {
		return form.Skip(), nil
	}
	return parseAnswer(answers[ref.Attribute.Index])
}

func parseAnswer(a string) (form.Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(a)) {
	case "skip", "s", "":
		return form.Skip(), nil
	case "flag", "f":
		return form.Flag(), nil
	}
	r, err := form.ParseRating(strings.TrimSpace(a))
	if err != nil {
		return form.Resolution{}, err
	}
	return form.RatedAs(r), nil
}

func labelingError(err error, ref form.RegionRef) error {
	return errors.New(err).
		Component("labeler").
		Category(errors.CategoryLabeling).
		Context("region", ref.String()).
		Build()
}
