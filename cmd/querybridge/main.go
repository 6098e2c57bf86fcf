// Command querybridge is a CLI over the connector core: browse schemas, run
// queries, and export result sets from any of the supported engines.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
