// Command mtcoreclient is a thin CLI harness around mtclient, grounded on
// the teacher's internal/cli.CLI (same kong.VersionFlag / one-struct-per-
// subcommand shape), rebuilt around client verbs instead of proxy verbs.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

// version is set at build time via -ldflags, the same convention the
// teacher's own build pipeline uses for kong.VersionFlag.
var version = "dev"

type cli struct {
	Run     runCmd           `kong:"cmd,help='Connect and print updates until interrupted.'"`
	Session sessionCmd       `kong:"cmd,help='Print the session store location and known DCs.'"`
	Version kong.VersionFlag `kong:"help='Print version.',short='v'"`
}

func main() {
	var c cli

	parser := kong.Must(&c,
		kong.Name("mtcoreclient"),
		kong.Description("MTProto core client harness"),
		kong.Vars{"version": version},
	)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "mtcoreclient:", err)
		os.Exit(1)
	}
}
