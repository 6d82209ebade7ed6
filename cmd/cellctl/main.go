// Command cellctl is the operator client for a cellbus server.
package main

import (
	"fmt"
	"os"
)

// version is set with -ldflags.
var version = "dev"

func main() {
	root := newRootCmd(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
