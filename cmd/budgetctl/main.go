package main

import (
	"log/slog"
	"os"

	"budget/internal/cli"
	"budget/internal/log"
)

func main() {
	cli.LoadEnvFile()
	// Tables go to stdout; only backend warnings reach stderr.
	logger := log.New(log.Config{Output: os.Stderr, Level: slog.LevelWarn, Component: log.ComponentCLI})
	cli.Execute(cli.Options{
		Open:   cli.ConfigOpener(logger),
		Logger: logger,
	})
}
