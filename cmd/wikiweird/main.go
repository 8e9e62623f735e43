// Package main provides the wikiweird command: it builds the unusual-articles
// dataset and compares published snapshots.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"wikiweird/internal/dataset"
	"wikiweird/internal/extractor"
)

// Process exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitExtract   = 2
	exitWrite     = 3
	exitCancelled = 130
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}

		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var (
		extErr   *extractor.ExtractionError
		writeErr *dataset.WriteFailure
	)

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.As(err, &extErr):
		return exitExtract
	case errors.As(err, &writeErr):
		return exitWrite
	default:
		return exitFailure
	}
}
