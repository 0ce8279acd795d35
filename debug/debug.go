package debug

import (
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
)

func init() {
	if v, ok := os.LookupEnv("SOCKLINE_DEBUG"); ok {
		if on, err := strconv.ParseBool(v); err == nil && on {
			Enable()
		}
	}
}

// Enable turns on debug-level logging for the whole module.
func Enable() {
	log.SetLevel(log.DebugLevel)
}

func Disable() {
	log.SetLevel(log.InfoLevel)
}
