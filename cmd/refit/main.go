// Command refit simulates telescope events and refits them with the two-pass
// Kalman refitter.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("refit failed")
		os.Exit(1)
	}
}
