// Package labelmap maps free-form model labels onto food categories.
package labelmap

import (
	"math"
	"strings"

	"github.com/MeKo-Tech/foodlens/internal/food"
)

// FuzzyDampening scales keyword matches below direct matches.
const FuzzyDampening = 0.85

// Kind tells how a label matched.
type Kind string

const (
	KindDirect Kind = "direct"
	KindFuzzy  Kind = "fuzzy"
)

// Match is a successful mapping.
type Match struct {
	Category   food.Category `json:"category"`
	Confidence int           `json:"confidence"`
	Kind       Kind          `json:"kind"`
	Key        string        `json:"key"`
}

type entry struct {
	key      string
	category food.Category
	weight   float64
}

// Mapper holds a normalised, read-only copy of a Table.
type Mapper struct {
	direct []entry
	// fuzzy is grouped per category in enumeration order.
	fuzzy [][]entry
}

// New builds a mapper from t after validating it.
func New(t Table) (*Mapper, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	m := &Mapper{}
	for _, d := range t.Direct {
		m.direct = append(m.direct, entry{key: normalize(d.Key), category: d.Category, weight: d.Weight})
	}
	for _, cat := range food.Categories() {
		var group []entry
		for _, k := range t.Fuzzy[cat] {
			group = append(group, entry{key: normalize(k.Keyword), category: cat, weight: k.Weight})
		}
		m.fuzzy = append(m.fuzzy, group)
	}
	return m, nil
}

// Default returns a mapper over DefaultTable.
func Default() *Mapper {
	m, err := New(DefaultTable())
	if err != nil {
		panic("labelmap: invalid default table: " + err.Error())
	}
	return m
}

// MapToCategory maps one raw label with its probability. The first direct
// key found in the label wins outright; otherwise the strongest fuzzy keyword
// wins, with ties going to the earlier category.
func (m *Mapper) MapToCategory(rawLabel string, probability float64) (Match, bool) {
	label := normalize(rawLabel)
	if label == "" {
		return Match{}, false
	}
	p := clampProbability(probability)

	for _, d := range m.direct {
		if strings.Contains(label, d.key) {
			return Match{
				Category:   d.category,
				Confidence: confidence(p * d.weight * 100),
				Kind:       KindDirect,
				Key:        d.key,
			}, true
		}
	}

	var best Match
	found := false
	for _, group := range m.fuzzy {
		for _, k := range group {
			if !strings.Contains(label, k.key) {
				continue
			}
			c := confidence(p * k.weight * 100 * FuzzyDampening)
			if !found || c > best.Confidence {
				best = Match{Category: k.category, Confidence: c, Kind: KindFuzzy, Key: k.key}
				found = true
			}
		}
	}
	return best, found
}

func clampProbability(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func confidence(percent float64) int {
	return food.ClampConfidence(int(math.Round(percent)))
}
