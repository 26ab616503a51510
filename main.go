// The main package for the indexer executable.
package main

import (
	"github.com/JakeFAU/search-indexer/cmd"
)

func main() {
	cmd.Execute()
}
