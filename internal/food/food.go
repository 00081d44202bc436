// Package food defines the closed set of food categories, the classification
// result value, and the confidence gate used to decide whether a result is
// trustworthy enough to show without asking for a retake.
package food

import (
	"fmt"
	"math"
	"strings"
)

// Category is one of the five food categories the app can recognise.
type Category string

// Supported categories, in enumeration order.
const (
	Pizza    Category = "pizza"
	Sushi    Category = "sushi"
	Ramen    Category = "ramen"
	Burger   Category = "burger"
	Empanada Category = "empanada"
)

// DefaultCategory is returned when nothing in a prediction maps to a category.
const DefaultCategory = Pizza

// Confidence bounds for ClassificationResult.
const (
	MinConfidence = 0
	MaxConfidence = 100
)

// DefaultConfidenceThreshold is the fraction (0..1) a result must reach to be
// considered confident.
const DefaultConfidenceThreshold = 0.6

// DefaultMinConfidence is DefaultConfidenceThreshold on the 0..100 scale.
const DefaultMinConfidence = 60

var categories = []Category{Pizza, Sushi, Ramen, Burger, Empanada}

var displayNames = map[Category]string{
	Pizza:    "Pizza",
	Sushi:    "Sushi",
	Ramen:    "Ramen",
	Burger:   "Burger",
	Empanada: "Empanada",
}

// searchKeywords are the terms used when looking for restaurants serving a category.
var searchKeywords = map[Category]string{
	Pizza:    "pizza",
	Sushi:    "sushi",
	Ramen:    "ramen",
	Burger:   "hamburger",
	Empanada: "empanadas",
}

// Categories returns all categories in enumeration order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Index returns the enumeration position of c, or -1 if c is not a known category.
func (c Category) Index() int {
	for i, v := range categories {
		if v == c {
			return i
		}
	}
	return -1
}

// Valid reports whether c is one of the enumerated categories.
func (c Category) Valid() bool { return c.Index() >= 0 }

func (c Category) String() string { return string(c) }

// ParseCategory parses a category identifier case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown food category %q", s)
	}
	return c, nil
}

// DisplayName returns the human-readable name of a category.
// Unknown categories yield an empty string.
func DisplayName(c Category) string {
	return displayNames[c]
}

// SearchKeyword returns the restaurant search keyword for a category.
func SearchKeyword(c Category) string {
	if kw, ok := searchKeywords[c]; ok {
		return kw
	}
	return strings.ToLower(string(c))
}

// ClassificationResult is the outcome of classifying a single image.
type ClassificationResult struct {
	Category   Category `json:"category"`
	Confidence int      `json:"confidence"` // 0..100
}

// Valid reports whether the result satisfies the category and confidence invariants.
func (r ClassificationResult) Valid() bool {
	return r.Category.Valid() && r.Confidence >= MinConfidence && r.Confidence <= MaxConfidence
}

// ClampConfidence limits v to [MinConfidence, MaxConfidence].
func ClampConfidence(v int) int {
	if v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}

// Gate decides whether a result is confident.
type Gate struct {
	Threshold float64 // 0..1
}

// DefaultGate returns a gate using DefaultConfidenceThreshold.
func DefaultGate() Gate {
	return Gate{Threshold: DefaultConfidenceThreshold}
}

// MinConfidence returns the threshold on the 0..100 scale.
func (g Gate) MinConfidence() int {
	return int(math.Round(g.Threshold * 100))
}

// IsConfident reports whether r meets the gate threshold.
func (g Gate) IsConfident(r ClassificationResult) bool {
	return r.Confidence >= g.MinConfidence()
}

// IsConfident applies the default gate to r.
func IsConfident(r ClassificationResult) bool {
	return DefaultGate().IsConfident(r)
}
