// The main package for the promocrawl executable.
package main

import (
	"github.com/cvsdeals/promocrawl/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
