package main

import (
	"fmt"
	"os"

	"github.com/strata-db/strata/internal/cli"
	"github.com/strata-db/strata/internal/migrate"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if migrate.IsDestructiveBlocked(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
