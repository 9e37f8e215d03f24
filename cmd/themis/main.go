// Command themis runs the item validation nodes, either as a JetStream worker
// or locally against a job file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
