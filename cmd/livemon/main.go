// Command livemon keeps a local view of a remote monitoring system in sync
// and serves it over a small JSON API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
