package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"wikiweird/internal/report"
	"wikiweird/internal/resolver"
)

func newResolveCommand(_ *commandContext) *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "resolve <location>...",
		Short: "Show how locations resolve against the country table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := resolver.New()
			if err != nil {
				return fmt.Errorf("load country table: %w", err)
			}

			rows := make([]report.Resolution, 0, len(args))

			for _, raw := range args {
				row := report.Resolution{Raw: raw, Result: r.Resolve(raw)}

				if row.Result.Country != nil {
					if c, ok := r.Country(*row.Result.Country); ok {
						row.CountryName = c.Name
					}
				}

				rows = append(rows, row)
			}

			fmt.Fprint(cmd.OutOrStdout(), report.New(width).Resolutions(r.Version(), rows))

			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", report.DefaultTitleWidth, "Maximum display width of locations")

	return cmd
}
