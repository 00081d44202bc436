// Package places ranks restaurants near a location for a food category using
// a bundled catalogue. It makes no network calls.
package places

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLimit caps the number of results.
	DefaultLimit = 10
	// earthRadiusKm is the mean Earth radius used by Haversine.
	earthRadiusKm = 6371.0
	// proximityRangeKm is the distance at which the proximity score reaches zero.
	proximityRangeKm = 5.0
	// defaultRating stands in for unrated places.
	defaultRating = 3.0
)

// DefaultLocation is central Buenos Aires, where the bundled catalogue lives.
var DefaultLocation = Location{Latitude: -34.6037, Longitude: -58.3816}

//go:embed catalogue.yaml
var bundled []byte

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range", l.Longitude)
	}
	return nil
}

// Place is a catalogue entry.
type Place struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Rating     float64 `yaml:"rating"`
	PriceLevel int     `yaml:"price_level"`
	Address    string  `yaml:"address"`
	Phone      string  `yaml:"phone,omitempty"`
	Latitude   float64 `yaml:"lat"`
	Longitude  float64 `yaml:"lng"`
}

// Restaurant is a ranked search result.
type Restaurant struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Rating     float64 `json:"rating"`
	PriceLevel string  `json:"price_level"`
	Address    string  `json:"address"`
	Phone      string  `json:"phone,omitempty"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Distance   string  `json:"distance"`
	DistanceKm float64 `json:"distance_km"`
	Score      float64 `json:"score"`
}

// Catalogue lists places per category.
type Catalogue map[food.Category][]Place

// ReadCatalogue decodes a YAML catalogue.
func ReadCatalogue(r io.Reader) (Catalogue, error) {
	var c Catalogue
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}
	for cat := range c {
		if !cat.Valid() {
			return nil, fmt.Errorf("catalogue: unknown category %q", cat)
		}
	}
	return c, nil
}

// LoadCatalogue reads a YAML catalogue from path.
func LoadCatalogue(path string) (Catalogue, error) {
	f, err := os.Open(path) //nolint:gosec // G304: catalogue path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open catalogue: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadCatalogue(f)
}

// BundledCatalogue returns the embedded demo catalogue.
func BundledCatalogue() Catalogue {
	c, err := ReadCatalogue(strings.NewReader(string(bundled)))
	if err != nil {
		panic("places: invalid bundled catalogue: " + err.Error())
	}
	return c
}

// Directory answers nearby-restaurant queries.
type Directory struct {
	catalogue     Catalogue
	maxDistanceKm float64
}

// NewDirectory creates a directory over c. A nil catalogue uses the bundled one.
// maxDistanceKm of zero disables the distance cut-off.
func NewDirectory(c Catalogue, maxDistanceKm float64) *Directory {
	if c == nil {
		c = BundledCatalogue()
	}
	return &Directory{catalogue: c, maxDistanceKm: maxDistanceKm}
}

// Nearby returns restaurants serving category ranked by score. Unknown
// categories use the default category's list.
func (d *Directory) Nearby(ctx context.Context, loc Location, category food.Category, limit int) ([]Restaurant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	entries, ok := d.catalogue[category]
	if !ok || !category.Valid() {
		entries = d.catalogue[food.DefaultCategory]
	}

	out := make([]Restaurant, 0, len(entries))
	for _, p := range entries {
		km := Distance(loc, Location{Latitude: p.Latitude, Longitude: p.Longitude})
		if d.maxDistanceKm > 0 && km > d.maxDistanceKm {
			continue
		}
		out = append(out, Restaurant{
			ID:         p.ID,
			Name:       p.Name,
			Rating:     p.Rating,
			PriceLevel: FormatPriceLevel(p.PriceLevel),
			Address:    p.Address,
			Phone:      p.Phone,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
			Distance:   FormatDistance(km),
			DistanceKm: km,
			Score:      Score(p.Rating, km),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Distance returns the great-circle distance in kilometres.
func Distance(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Score weighs rating (60%) against proximity (40%). Unrated places count as 3 stars.
func Score(rating, distanceKm float64) float64 {
	if rating <= 0 {
		rating = defaultRating
	}
	proximity := math.Max(0, 1-distanceKm/proximityRangeKm)
	return rating/5*0.6 + proximity*0.4
}

// FormatDistance renders metres below one kilometre, else kilometres with one decimal.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%d m", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.1f km", km)
}

// FormatPriceLevel renders a price level as dollar signs; unset means "$".
func FormatPriceLevel(level int) string {
	if level <= 0 {
		return "$"
	}
	return strings.Repeat("$", level)
}
