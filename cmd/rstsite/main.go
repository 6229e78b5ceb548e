package main

import (
	"fmt"
	"os"

	"git.home.luguber.info/inful/rstsite/cmd/rstsite/commands"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/version"
)

func main() {
	cli := &commands.CLI{}
	g := &commands.Global{Stdout: os.Stdout, Stderr: os.Stderr}

	parser, err := commands.New(cli, g, version.String())
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ctx.Run(); err != nil {
		ferrors.NewCLIErrorAdapter(cli.Verbose, g.Logger).HandleError(err)
	}
}
