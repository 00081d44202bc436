package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/MeKo-Tech/foodlens/internal/places"
	"github.com/spf13/cobra"
)

type restaurantsOutput struct {
	Category    food.Category       `json:"category"`
	Location    places.Location     `json:"location"`
	Restaurants []places.Restaurant `json:"restaurants"`
}

func (c *cli) newRestaurantsCommand() *cobra.Command {
	var (
		format   string
		lat, lng float64
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "restaurants [category]",
		Short: "List nearby restaurants for a food category",
		Long: `List restaurants serving a food category, best scored first.

The score weighs rating against distance from the given location. Without
--lat/--lng the configured default location is used.

Examples:
  foodlens restaurants sushi
  foodlens restaurants ramen --lat -34.58 --lng -58.43 --limit 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.config()

			category := food.DefaultCategory
			if len(args) == 1 {
				parsed, err := food.ParseCategory(args[0])
				if err != nil {
					return fmt.Errorf("%w (known: %v)", err, food.Categories())
				}
				category = parsed
			}

			loc := cfg.DefaultLocation()
			latSet, lngSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lng")
			if latSet != lngSet {
				return errors.New("--lat and --lng must be given together")
			}
			if latSet {
				loc = places.Location{Latitude: lat, Longitude: lng}
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Places.ResultsLimit
			}

			directory, err := newDirectory(cfg)
			if err != nil {
				return err
			}
			found, err := directory.Nearby(cmd.Context(), loc, category, limit)
			if err != nil {
				return err
			}

			switch format {
			case formatJSON:
				return writeJSON(cmd.OutOrStdout(), restaurantsOutput{
					Category:    category,
					Location:    loc,
					Restaurants: found,
				})
			case formatText:
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintf(tw, "%s near %.4f,%.4f\n", food.DisplayName(category), loc.Latitude, loc.Longitude)
				_, _ = fmt.Fprintln(tw, "NAME\tRATING\tPRICE\tDISTANCE\tADDRESS")
				for _, r := range found {
					_, _ = fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%s\n", r.Name, r.Rating, r.PriceLevel, r.Distance, r.Address)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("invalid format %q (use text or json)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format (text, json)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude of the search location")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude of the search location")
	cmd.Flags().IntVarP(&limit, "limit", "n", places.DefaultLimit, "maximum number of restaurants")
	return cmd
}
