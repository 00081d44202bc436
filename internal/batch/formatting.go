package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/MeKo-Tech/foodlens/internal/classifier"
	"github.com/MeKo-Tech/foodlens/internal/food"
)

// Summary aggregates a run.
type Summary struct {
	Total          int                           `json:"total"`
	Confident      int                           `json:"confident"`
	Failed         int                           `json:"failed"`
	ByCategory     map[food.Category]int         `json:"by_category"`
	ByProvenance   map[classifier.Provenance]int `json:"by_provenance"`
	MeanConfidence float64                       `json:"mean_confidence"`
}

// Summarize counts results by category and provenance. isConfident decides
// the confident count; nil counts none.
func Summarize(items []Item, isConfident func(food.ClassificationResult) bool) Summary {
	s := Summary{
		Total:        len(items),
		ByCategory:   map[food.Category]int{},
		ByProvenance: map[classifier.Provenance]int{},
	}
	var sum, n int
	for _, it := range items {
		if it.Err != nil {
			s.Failed++
			continue
		}
		s.ByCategory[it.Result.Category]++
		s.ByProvenance[it.Result.Provenance]++
		if isConfident != nil && isConfident(it.Result.ClassificationResult) {
			s.Confident++
		}
		sum += it.Result.Confidence
		n++
	}
	if n > 0 {
		s.MeanConfidence = float64(sum) / float64(n)
	}
	return s
}

// WriteSummary renders s as a small table.
func WriteSummary(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Images:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(tw, "Confident:\t%d\n", s.Confident)
	if s.Failed > 0 {
		_, _ = fmt.Fprintf(tw, "Failed:\t%d\n", s.Failed)
	}
	_, _ = fmt.Fprintf(tw, "Mean confidence:\t%.1f%%\n", s.MeanConfidence)
	for _, c := range food.Categories() {
		if n := s.ByCategory[c]; n > 0 {
			_, _ = fmt.Fprintf(tw, "  %s:\t%d\n", food.DisplayName(c), n)
		}
	}
	provs := make([]string, 0, len(s.ByProvenance))
	for p := range s.ByProvenance {
		provs = append(provs, string(p))
	}
	sort.Strings(provs)
	for _, p := range provs {
		_, _ = fmt.Fprintf(tw, "  via %s:\t%d\n", p, s.ByProvenance[classifier.Provenance(p)])
	}
	return tw.Flush()
}

var csvHeader = []string{"file", "category", "display_name", "confidence", "confident", "provenance", "model_state", "label", "attempts", "duration_ms", "error"}

// WriteCSV writes one row per item.
func WriteCSV(w io.Writer, items []Item, isConfident func(food.ClassificationResult) bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, it := range items {
		row := []string{it.File, "", "", "", "", "", "", "", "", "", ""}
		if it.Err != nil {
			row[10] = it.Err.Error()
		} else {
			r := it.Result
			confident := isConfident != nil && isConfident(r.ClassificationResult)
			row[1] = string(r.Category)
			row[2] = food.DisplayName(r.Category)
			row[3] = strconv.Itoa(r.Confidence)
			row[4] = strconv.FormatBool(confident)
			row[5] = string(r.Provenance)
			row[6] = r.ModelState.String()
			row[7] = r.Label
			row[8] = strconv.Itoa(r.Attempts)
			row[9] = strconv.FormatInt(r.Duration.Milliseconds(), 10)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
