package main

import (
	"fmt"
	"os"

	"github.com/flowchain/flowchain/infrastructure/logger"
)

var (
	backendLog = logger.NewBackend()
	log        = backendLog.Logger("FLWD")
)

func initLog(logFile, errLogFile string) {
	log.SetLevel(logger.LevelInfo)
	if err := backendLog.AddLogFile(logFile, logger.LevelTrace); err != nil {
		fmt.Fprintf(os.Stderr, "error adding log file %s: %s\n", logFile, err)
		os.Exit(1)
	}
	if err := backendLog.AddLogFile(errLogFile, logger.LevelWarn); err != nil {
		fmt.Fprintf(os.Stderr, "error adding log file %s: %s\n", errLogFile, err)
		os.Exit(1)
	}
}
