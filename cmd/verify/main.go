package main

import (
	"fmt"
	"os"

	"github.com/nimbus-works/nimbus-event-forwarder/internal/config"
	"github.com/nimbus-works/nimbus-event-forwarder/pkg/destinations"
)

// Exit codes: 0 config is clean, 1 config loaded with warnings or invalid
// destinations, 2 config could not be loaded at all.
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}

	destCfg, err := destinations.Load(cfg.DestinationsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load destinations: %v\n", err)
		return 2
	}

	snap := destinations.TakeSnapshot(destCfg)
	report := destinations.BuildVerification(destCfg, snap)

	fmt.Printf("Destination config source: %s\n\n", destCfg.Source)
	fmt.Println(report.Summary())

	for _, w := range report.LoadWarnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	for _, e := range report.ValidationErrors {
		fmt.Fprintf(os.Stderr, "invalid: %s\n", e)
	}

	if report.Status != destinations.StatusSuccess {
		return 1
	}
	return 0
}
