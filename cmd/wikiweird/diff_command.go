package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"wikiweird/internal/dataset"
	"wikiweird/internal/models"
	"wikiweird/internal/report"
)

var errSnapshotMissing = errors.New("snapshot not found")

func newDiffCommand(_ *commandContext) *cobra.Command {
	var width int

	cmd := &cobra.Command{
		Use:   "diff <old.json> <new.json>",
		Short: "List articles added, removed or changed between two snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := loadSnapshot(args[0])
			if err != nil {
				return err
			}

			next, err := loadSnapshot(args[1])
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), report.New(width).Diff(dataset.Compare(prev, next)))

			return nil
		},
	}

	cmd.Flags().IntVar(&width, "width", report.DefaultTitleWidth, "Maximum display width of titles")

	return cmd
}

func loadSnapshot(path string) (*models.Snapshot, error) {
	snap, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}

	if snap == nil {
		return nil, fmt.Errorf("%w: %s", errSnapshotMissing, path)
	}

	return snap, nil
}
