package labelmap

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"gopkg.in/yaml.v3"
)

// DirectEntry maps any label containing Key straight onto Category.
type DirectEntry struct {
	Key      string        `yaml:"key"`
	Category food.Category `yaml:"category"`
	Weight   float64       `yaml:"weight"`
}

// Keyword is a weak hint towards a category.
type Keyword struct {
	Keyword string  `yaml:"keyword"`
	Weight  float64 `yaml:"weight"`
}

// Table is the label-to-category mapping. Direct entries are checked in order;
// fuzzy keywords are grouped by category.
type Table struct {
	Direct []DirectEntry                `yaml:"direct"`
	Fuzzy  map[food.Category][]Keyword `yaml:"fuzzy"`
}

// DefaultTable returns the built-in mapping. Each call returns a fresh copy.
func DefaultTable() Table {
	return Table{
		Direct: []DirectEntry{
			{Key: "pizza", Category: food.Pizza, Weight: 1.0},
			{Key: "sushi", Category: food.Sushi, Weight: 1.0},
			{Key: "sashimi", Category: food.Sushi, Weight: 0.9},
			{Key: "ramen", Category: food.Ramen, Weight: 1.0},
			{Key: "cheeseburger", Category: food.Burger, Weight: 1.0},
			{Key: "hamburger", Category: food.Burger, Weight: 1.0},
			{Key: "empanada", Category: food.Empanada, Weight: 1.0},
			{Key: "hot pot", Category: food.Ramen, Weight: 0.7},
			{Key: "hotpot", Category: food.Ramen, Weight: 0.7},
			{Key: "consomme", Category: food.Ramen, Weight: 0.6},
		},
		Fuzzy: map[food.Category][]Keyword{
			food.Pizza: {
				{"pepperoni", 0.9}, {"margherita", 0.9}, {"mozzarella", 0.6}, {"flatbread", 0.5}, {"dough", 0.4},
			},
			food.Sushi: {
				{"nigiri", 0.95}, {"maki", 0.9}, {"raw fish", 0.6}, {"seaweed", 0.5}, {"roll", 0.5},
				{"salmon", 0.4}, {"rice", 0.3},
			},
			food.Ramen: {
				{"noodle", 0.9}, {"udon", 0.7}, {"broth", 0.6}, {"soup", 0.5}, {"miso", 0.5},
			},
			food.Burger: {
				{"patty", 0.8}, {"bun", 0.5}, {"sandwich", 0.4}, {"beef", 0.3},
			},
			food.Empanada: {
				{"turnover", 0.8}, {"pasty", 0.7}, {"pastry", 0.6}, {"dumpling", 0.6}, {"samosa", 0.6},
			},
		},
	}
}

// Validate checks categories, keys and weights.
func (t Table) Validate() error {
	var errs []error
	for i, d := range t.Direct {
		if normalize(d.Key) == "" {
			errs = append(errs, fmt.Errorf("direct[%d]: empty key", i))
		}
		if !d.Category.Valid() {
			errs = append(errs, fmt.Errorf("direct[%d] %q: unknown category %q", i, d.Key, d.Category))
		}
		if !validWeight(d.Weight) {
			errs = append(errs, fmt.Errorf("direct[%d] %q: weight %v outside (0,1]", i, d.Key, d.Weight))
		}
	}
	for cat, kws := range t.Fuzzy {
		if !cat.Valid() {
			errs = append(errs, fmt.Errorf("fuzzy: unknown category %q", cat))
		}
		for i, k := range kws {
			if normalize(k.Keyword) == "" {
				errs = append(errs, fmt.Errorf("fuzzy %s[%d]: empty keyword", cat, i))
			}
			if !validWeight(k.Weight) {
				errs = append(errs, fmt.Errorf("fuzzy %s[%d] %q: weight %v outside (0,1]", cat, i, k.Keyword, k.Weight))
			}
		}
	}
	return errors.Join(errs...)
}

func validWeight(w float64) bool { return w > 0 && w <= 1 }

// ReadTable decodes a YAML mapping table.
func ReadTable(r io.Reader) (Table, error) {
	var t Table
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Table{}, fmt.Errorf("decode mapping table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, fmt.Errorf("invalid mapping table: %w", err)
	}
	return t, nil
}

// LoadTable reads a YAML mapping table from path.
func LoadTable(path string) (Table, error) {
	f, err := os.Open(path) //nolint:gosec // G304: mapping path comes from configuration
	if err != nil {
		return Table{}, fmt.Errorf("open mapping table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadTable(f)
}

// WriteTable encodes t as YAML.
func WriteTable(w io.Writer, t Table) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return err
	}
	return enc.Close()
}
