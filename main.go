// The main package for the artharvest executable.
package main

import (
	"github.com/JakeFAU/artharvest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
