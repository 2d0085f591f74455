package main

import (
	"os"

	"github.com/openbiblio/zotero-harvester/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
