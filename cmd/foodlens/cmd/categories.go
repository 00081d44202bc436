package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/MeKo-Tech/foodlens/internal/food"
	"github.com/spf13/cobra"
)

type categoryOutput struct {
	ID            food.Category `json:"id"`
	DisplayName   string        `json:"display_name"`
	SearchKeyword string        `json:"search_keyword"`
}

func (c *cli) newCategoriesCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the supported food categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cats := food.Categories()
			out := make([]categoryOutput, 0, len(cats))
			for _, cat := range cats {
				out = append(out, categoryOutput{
					ID:            cat,
					DisplayName:   food.DisplayName(cat),
					SearchKeyword: food.SearchKeyword(cat),
				})
			}

			switch format {
			case formatJSON:
				return writeJSON(cmd.OutOrStdout(), out)
			case formatText:
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tNAME\tSEARCH KEYWORD")
				for _, o := range out {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", o.ID, o.DisplayName, o.SearchKeyword)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("invalid format %q (use text or json)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format (text, json)")
	return cmd
}
