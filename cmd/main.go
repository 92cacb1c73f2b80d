package main

import (
	"os"

	"quiz-progress-service/internal/cli"
	"quiz-progress-service/internal/config"
)

func main() {
	if err := cli.Execute(); err != nil {
		config.Logger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
