// Command weaved runs a single peer of the workflow runtime: it owns the
// swarm, the receipt store, and the WASM evaluator, and exposes them through
// a small cobra command tree (spec.md's CLI/config surface, carried as
// ambient stack rather than in-scope business logic).
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
