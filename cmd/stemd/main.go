package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// Ctrl-C already prints nothing useful beyond the exit status.
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "stemd: %v\n", err)
		}
		os.Exit(1)
	}
}
