package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/boxesandglue/restyle/internal/cli"
)

var version = "dev"

func main() {
	err := fang.Execute(context.Background(), cli.NewRootCmd(),
		fang.WithVersion(version),
		fang.WithErrorHandler(cli.ErrorHandler),
		fang.WithNotifySignal(os.Interrupt),
	)
	if err != nil {
		os.Exit(1)
	}
}
