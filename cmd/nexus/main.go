// Command nexus emits facts into CUE topologies, validates topologies,
// traces recorded lineage and runs YAML scenarios.
package main

import (
	"os"

	"github.com/roach88/nexus/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
