package wire

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/flowchain/flowchain/infrastructure/logger"
)

// log is silent (LevelOff) until SetLogger installs a real subsystem
// logger, tagged "WIRE" by convention.
var log = logger.NewBackend().Logger("WIRE")

// SetLogger installs the subsystem logger this package writes through.
func SetLogger(l *logger.Logger) {
	log = l
}

// logDecoded lazily spew-dumps msg for trace logging; the dump itself only
// runs if the logger's level is at or below LevelTrace.
func logDecoded(msg Message) {
	log.Tracef("decoded %s: %s", msg.Command(), logger.NewLogClosure(func() string {
		return spew.Sdump(msg)
	}))
}
