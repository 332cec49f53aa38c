package vm

import "github.com/flowchain/flowchain/infrastructure/logger"

// log is silent (LevelOff) until SetLogger installs a real subsystem
// logger, tagged "VM" by convention.
var log = logger.NewBackend().Logger("VM")

// SetLogger installs the subsystem logger this package writes through.
func SetLogger(l *logger.Logger) {
	log = l
}
