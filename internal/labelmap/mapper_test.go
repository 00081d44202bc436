package labelmap

import (
	"math"
	"sync"
	"testing"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapToCategory(t *testing.T) {
	m := Default()

	tests := []struct {
		name       string
		label      string
		prob       float64
		want       food.Category
		confidence int
		kind       Kind
		key        string
	}{
		{"direct pizza", "pizza", 0.9, food.Pizza, 90, KindDirect, "pizza"},
		{"fuzzy noodle soup", "noodle soup", 0.8, food.Ramen, 61, KindFuzzy, "noodle"},
		{"direct beats fuzzy", "pepperoni pizza", 0.5, food.Pizza, 50, KindDirect, "pizza"},
		{"direct insertion order", "sushi pizza", 1.0, food.Pizza, 100, KindDirect, "pizza"},
		{"weighted direct", "sashimi", 1.0, food.Sushi, 90, KindDirect, "sashimi"},
		{"underscore label", "Hot_Pot", 1.0, food.Ramen, 70, KindDirect, "hot pot"},
		{"imagenet style label", "cheeseburger", 0.42, food.Burger, 42, KindDirect, "cheeseburger"},
		{"case folded", "RAMEN", 0.33, food.Ramen, 33, KindDirect, "ramen"},
		{"diacritics", "consommé", 1.0, food.Ramen, 60, KindDirect, "consomme"},
		{"plural", "empanadas", 0.77, food.Empanada, 77, KindDirect, "empanada"},
		{"fuzzy strongest wins", "beef patty", 1.0, food.Burger, 68, KindFuzzy, "patty"},
		{"fuzzy across categories", "salmon nigiri", 1.0, food.Sushi, 81, KindFuzzy, "nigiri"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.MapToCategory(tt.label, tt.prob)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Category)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.key, got.Key)
		})
	}
}

// Equal fuzzy scores in different categories go to the category listed first.
func TestMapToCategory_FuzzyTieBreak(t *testing.T) {
	m := Default()

	got, ok := m.MapToCategory("mozzarella dumpling", 1.0)
	require.True(t, ok)
	assert.Equal(t, food.Pizza, got.Category)
	assert.Equal(t, 51, got.Confidence)

	got, ok = m.MapToCategory("dumpling mozzarella", 1.0)
	require.True(t, ok)
	assert.Equal(t, food.Pizza, got.Category, "label word order must not matter")

	got, ok = m.MapToCategory("raw fish broth", 1.0)
	require.True(t, ok)
	assert.Equal(t, food.Sushi, got.Category)
	assert.Equal(t, "raw fish", got.Key)
}

func TestMapToCategory_NoMatch(t *testing.T) {
	m := Default()
	for _, label := range []string{"", "   ", "plate", "crème brûlée", "spoon", "monitor"} {
		_, ok := m.MapToCategory(label, 0.99)
		assert.False(t, ok, label)
	}
}

func TestMapToCategory_ProbabilityClamped(t *testing.T) {
	m := Default()

	got, ok := m.MapToCategory("pizza", 1.7)
	require.True(t, ok)
	assert.Equal(t, 100, got.Confidence)

	got, ok = m.MapToCategory("pizza", -0.2)
	require.True(t, ok)
	assert.Equal(t, 0, got.Confidence)

	got, ok = m.MapToCategory("pizza", math.NaN())
	require.True(t, ok)
	assert.Equal(t, 0, got.Confidence)
}

func TestMapToCategory_TableNotMutated(t *testing.T) {
	table := DefaultTable()
	m, err := New(table)
	require.NoError(t, err)

	table.Direct[0].Key = "zzz"
	table.Fuzzy[food.Ramen] = nil

	got, ok := m.MapToCategory("pizza", 1)
	require.True(t, ok)
	assert.Equal(t, food.Pizza, got.Category)
	got, ok = m.MapToCategory("noodle", 1)
	require.True(t, ok)
	assert.Equal(t, food.Ramen, got.Category)
}

func TestMapToCategory_Properties(t *testing.T) {
	m := Default()
	labels := []string{
		"pizza", "noodle soup", "pepperoni", "sashimi", "beef patty", "samosa",
		"hot pot", "rice", "salmon roll", "cheeseburger", "mozzarella dumpling",
	}

	properties := gopter.NewProperties(nil)

	properties.Property("confidence stays in [0,100] and category is valid", prop.ForAll(
		func(idx int, p float64) bool {
			got, ok := m.MapToCategory(labels[idx], p)
			if !ok {
				return false
			}
			return got.Category.Valid() && got.Confidence >= 0 && got.Confidence <= 100
		},
		gen.IntRange(0, len(labels)-1),
		gen.Float64Range(-1, 2),
	))

	properties.Property("confidence is monotonic in probability", prop.ForAll(
		func(idx int, a, b float64) bool {
			if a > b {
				a, b = b, a
			}
			lo, _ := m.MapToCategory(labels[idx], a)
			hi, _ := m.MapToCategory(labels[idx], b)
			return lo.Confidence <= hi.Confidence
		},
		gen.IntRange(0, len(labels)-1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
	))

	properties.Property("fuzzy never exceeds dampened probability", prop.ForAll(
		func(p float64) bool {
			got, _ := m.MapToCategory("noodle", p)
			return float64(got.Confidence) <= math.Round(p*100*FuzzyDampening)
		},
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"Hot_Pot":          "hot pot",
		"  spaced   out  ": "spaced out",
		"Crème-Brûlée":     "creme brulee",
		"STRASSE":          "strasse",
		"ｐｉｚｚａ":            "pizza",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalize(in), in)
	}
}

func TestNormalize_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				if got := normalize("Crème_Brûlée"); got != "creme brulee" {
					t.Errorf("normalize = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}
