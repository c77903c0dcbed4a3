// Command eventclient sends voice-session events to the telemetry service,
// or runs a scripted call in-process.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
