package main

import (
	"log/slog"
	"os"

	"machdis/internal/logging"
	"machdis/internal/machdis/cmd"
)

var exit = os.Exit

// crashed runs after a recovered panic so the process still fails.
func crashed() {
	slog.Error("Application terminated due to unhandled panic")
	exit(1)
}

func main() {
	defer logging.RecoverPanic("main", crashed)

	cmd.Execute()
}
