package main

import (
	"os"

	"github.com/nexuspay/payd/cli"
)

// version is set through ldflags at build time.
var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
