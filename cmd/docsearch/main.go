// Command docsearch queries a documentation search index from the shell.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/docsearch/cmd/docsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
