// The main package for the pipeline executable.
package main

import (
	"github.com/madun/platform-nlp-dqm/cmd"
)

func main() {
	cmd.Execute()
}
