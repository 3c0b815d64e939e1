package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	err := newRootCommand().Execute()
	if err == nil {
		return
	}
	// Interrupted runs already reported their state.
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "chunkscribe: %v\n", err)
	}
	os.Exit(exitCode(err))
}
