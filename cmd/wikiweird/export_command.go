package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wikiweird/internal/report"
)

func newExportCommand(cc *commandContext) *cobra.Command {
	var (
		width int
		out   string
	)

	cmd := &cobra.Command{
		Use:   "export [dataset.json]",
		Short: "Render a snapshot as markdown tables grouped by region",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := cc.loadConfig()
				if err != nil {
					return err
				}

				path = cfg.Output.Path
			}

			snap, err := loadSnapshot(path)
			if err != nil {
				return err
			}

			md := report.New(width).Markdown(snap)

			if out == "" {
				fmt.Fprint(cmd.OutOrStdout(), md)

				return nil
			}

			if err := os.WriteFile(out, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", report.DefaultTitleWidth, "Maximum display width of titles and descriptions")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write markdown to this file instead of stdout")

	return cmd
}
