package mempoolmanager

import "github.com/flowchain/flowchain/infrastructure/logger"

// log is silent (LevelOff) until SetLogger installs a real subsystem
// logger, tagged "MPL" by convention.
var log = logger.NewBackend().Logger("MPL")

// SetLogger installs the subsystem logger this package writes through.
func SetLogger(l *logger.Logger) {
	log = l
}
