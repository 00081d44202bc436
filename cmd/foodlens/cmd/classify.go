package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/MeKo-Tech/foodlens/internal/batch"
	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/preprocess"
	"github.com/MeKo-Tech/foodlens/internal/provider"
	"github.com/spf13/cobra"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatCSV  = "csv"
)

// classifyOutput is one classified image in JSON output.
type classifyOutput struct {
	File        string                `json:"file"`
	Category    food.Category         `json:"category"`
	DisplayName string                `json:"display_name"`
	Confidence  int                   `json:"confidence"`
	Confident   bool                  `json:"confident"`
	Provenance  classifier.Provenance `json:"provenance"`
	ModelState  provider.State        `json:"model_state"`
	Label       string                `json:"label,omitempty"`
	Attempts    int                   `json:"attempts"`
	DurationMs  int64                 `json:"duration_ms"`
	Error       string                `json:"error,omitempty"`
}

func (c *cli) newClassifyCommand() *cobra.Command {
	var (
		format        string
		retry         bool
		minConfidence int
		maxRetries    int
		recursive     bool
		workers       int
		include       []string
		exclude       []string
		summary       bool
		progress      bool
	)

	cmd := &cobra.Command{
		Use:   "classify <image|dir> [image|dir...]",
		Short: "Classify food photos",
		Long: `Classify food photos (JPEG, PNG, BMP, WebP) into a food category.

Directories are scanned for supported images. Every image yields a result:
when the model is unavailable or fails, a deterministic fallback category is
reported with provenance "fallback".

Examples:
  foodlens classify lunch.jpg
  foodlens classify --retry --format json dinner.png
  foodlens classify -r --workers 4 --format csv --summary photos/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case formatText, formatJSON, formatCSV:
			default:
				return fmt.Errorf("invalid format %q (use text, json or csv)", format)
			}
			cfg := c.config()
			if !cmd.Flags().Changed("min-confidence") {
				minConfidence = cfg.Classifier.RetryMinConfidence
			}
			if !cmd.Flags().Changed("max-retries") {
				maxRetries = cfg.Classifier.MaxRetries
			}

			files, err := batch.Discover(args, recursive, include, exclude)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.New("no image files found")
			}

			a, err := newApp(cfg, c.log())
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					c.log().Warn("failed to close classifier", "error", err)
				}
			}()

			ctx := cmd.Context()
			if err := a.orch.LoadModel(ctx); err != nil {
				c.log().Warn("model unavailable, results use the fallback", "error", err)
			}

			classify := batch.ClassifyFunc(a.orch.Classify)
			if retry {
				classify = func(ctx context.Context, res preprocess.Resource) (classifier.Result, error) {
					return a.orch.ClassifyWithRetry(ctx, res, minConfidence, maxRetries)
				}
			}
			runCfg := batch.Config{Workers: workers}
			if progress {
				runCfg.Progress = batch.NewConsoleProgress(cmd.ErrOrStderr(), "Classifying: ")
			}
			res, err := batch.Run(ctx, files, classify, runCfg)
			if err != nil {
				return err
			}
			c.log().Debug("batch finished", "images", len(files), "workers", res.Workers, "duration", res.Duration)

			out := cmd.OutOrStdout()
			isConfident := a.orch.IsConfident
			switch format {
			case formatJSON:
				outputs := make([]classifyOutput, 0, len(res.Items))
				for _, it := range res.Items {
					outputs = append(outputs, newClassifyOutput(it, isConfident))
				}
				if summary {
					err = writeJSON(out, struct {
						Results []classifyOutput `json:"results"`
						Summary batch.Summary    `json:"summary"`
					}{outputs, batch.Summarize(res.Items, isConfident)})
				} else {
					err = writeJSON(out, outputs)
				}
			case formatCSV:
				err = batch.WriteCSV(out, res.Items, isConfident)
			default:
				err = writeClassifyText(out, res.Items, isConfident)
				if err == nil && summary {
					_, _ = fmt.Fprintln(out)
					err = batch.WriteSummary(out, batch.Summarize(res.Items, isConfident))
				}
			}
			if err != nil {
				return err
			}
			if failed := res.Failed(); failed > 0 {
				return fmt.Errorf("%d of %d images could not be classified", failed, len(res.Items))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&format, "format", "f", formatText, "output format (text, json, csv)")
	f.BoolVar(&retry, "retry", false, "retry low-confidence results")
	f.IntVar(&minConfidence, "min-confidence", 60, "confidence (0-100) that stops retrying")
	f.IntVar(&maxRetries, "max-retries", 2, "maximum attempts when retrying")
	f.BoolVarP(&recursive, "recursive", "r", false, "scan directories recursively")
	f.IntVarP(&workers, "workers", "w", 0, "concurrent classifications (0 = number of CPUs)")
	f.StringSliceVar(&include, "include", nil, "only classify files matching these patterns")
	f.StringSliceVar(&exclude, "exclude", nil, "skip files matching these patterns")
	f.BoolVar(&summary, "summary", false, "print a summary after the results")
	f.BoolVar(&progress, "progress", false, "show a progress bar on stderr")
	return cmd
}

func newClassifyOutput(it batch.Item, isConfident func(food.ClassificationResult) bool) classifyOutput {
	if it.Err != nil {
		return classifyOutput{File: it.File, Error: it.Err.Error()}
	}
	r := it.Result
	return classifyOutput{
		File:        it.File,
		Category:    r.Category,
		DisplayName: food.DisplayName(r.Category),
		Confidence:  r.Confidence,
		Confident:   isConfident(r.ClassificationResult),
		Provenance:  r.Provenance,
		ModelState:  r.ModelState,
		Label:       r.Label,
		Attempts:    r.Attempts,
		DurationMs:  r.Duration.Milliseconds(),
	}
}

func writeClassifyText(w io.Writer, items []batch.Item, isConfident func(food.ClassificationResult) bool) error {
	for _, it := range items {
		var line string
		if it.Err != nil {
			line = fmt.Sprintf("%s: error: %v", it.File, it.Err)
		} else {
			r := it.Result
			verdict := "confident"
			if !isConfident(r.ClassificationResult) {
				verdict = "uncertain"
			}
			line = fmt.Sprintf("%s: %s (%d%%, %s, %s", it.File, food.DisplayName(r.Category), r.Confidence, verdict, r.Provenance)
			if r.Label != "" {
				line += ", label " + r.Label
			}
			line += ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
