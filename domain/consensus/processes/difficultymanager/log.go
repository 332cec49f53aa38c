package difficultymanager

import "github.com/flowchain/flowchain/infrastructure/logger"

// log is silent (LevelOff) until SetLogger installs a real subsystem
// logger, tagged "DIFF" by convention.
var log = logger.NewBackend().Logger("DIFF")

// SetLogger installs the subsystem logger this package writes through.
func SetLogger(l *logger.Logger) {
	log = l
}
