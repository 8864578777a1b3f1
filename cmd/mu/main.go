// mu is the muster CLI for coordinating agents that share a workspace.
package main

import (
	"os"

	"github.com/steveyegge/muster/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
