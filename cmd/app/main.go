package main

import (
	"os"

	"bookworms/internal/cli"
	"bookworms/internal/logger"
)

func main() {
	if err := cli.Execute(); err != nil {
		logger.Error("exited with error", "error", err)
		os.Exit(1)
	}
}
