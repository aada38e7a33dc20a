// Command actorctl is a thin administrative CLI exercising every module of
// this library without a real cluster — the same role cmd/bd plays for the
// teacher's storage and sync layers, scaled down to this package's
// narrower surface.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
