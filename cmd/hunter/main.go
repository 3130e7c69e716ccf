// Command hunter is the thin CLI front end over the collection engine:
// one cobra subcommand per verb (§6), none of them carrying core logic —
// they only parse connection flags, load the rule file, and hand off to
// internal/coordinator.
package main

import (
	"os"

	"github.com/smartshare/hunter/cmd/hunter/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
