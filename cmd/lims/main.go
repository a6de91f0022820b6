package main

import (
	"os"

	"github.com/labtrack/lims/pkg/common/logger"
)

func main() {
	logger.Init()
	if err := rootCmd.Execute(); err != nil {
		logger.Log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
