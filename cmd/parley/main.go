package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/parley-chat/parley/internal/app"
	"github.com/parley-chat/parley/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	headlessFlag := flag.Bool("headless", false, "run without the terminal UI")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	application := fx.New(
		app.Module(app.Params{
			ProfileName: profileName,
			Headless:    *headlessFlag,
		}),
		fx.NopLogger,
	)

	application.Run()
}
