// The main package for the urlchecker executable.
package main

import (
	"github.com/JakeFAU/competitor-url-checker/cmd"
)

func main() {
	cmd.Execute()
}
