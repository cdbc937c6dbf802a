package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/wagate-io/wagate/internal/daemon"
	"github.com/wagate-io/wagate/internal/session"
	"go.uber.org/fx"
)

func main() {
	identityFlag := flag.String("identity", "", "session identity (overrides config default)")
	flag.Parse()

	if *identityFlag != "" {
		if err := session.ValidateIdentity(*identityFlag); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	app := fx.New(
		daemon.Module(daemon.Params{Identity: *identityFlag}),
	)

	app.Run()
}
