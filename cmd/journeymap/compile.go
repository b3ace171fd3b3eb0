package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/osa030/journeymap/internal/api/httpapi"
	"github.com/osa030/journeymap/internal/app/generator"
	"github.com/osa030/journeymap/internal/domain/brainwave"
	"github.com/osa030/journeymap/internal/domain/journey"
	"github.com/osa030/journeymap/internal/infra/config"
)

// runCompile prints the compiled journey.
func runCompile(cfg *config.Config, w io.Writer, asJSON bool) error {
	plan := httpapi.NewPlanResponse(journey.Compile(cfg.Journey.Segments))

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(plan), "failed to encode plan")
	}

	fmt.Fprintf(w, "%-3s %-10s %9s %9s %7s %7s %-11s %s\n",
		"#", "TYPE", "START", "END", "FROM", "TO", "CURVE", "BAND")
	for _, seg := range plan.Segments {
		curve := string(seg.Curve)
		if seg.Type == journey.KindPlateau {
			curve = "-"
		}
		band := string(brainwave.GetWaveType(seg.StartHz))
		if seg.StartHz != seg.EndHz {
			band += " -> " + string(brainwave.GetWaveType(seg.EndHz))
		}
		if !seg.Playable {
			band = "skipped (out of range)"
		}
		fmt.Fprintf(w, "%-3d %-10s %8.1fs %8.1fs %7.2f %7.2f %-11s %s\n",
			seg.Index, seg.Type, seg.StartTimeSeconds, seg.EndTimeSeconds,
			seg.StartHz, seg.EndHz, curve, band)
	}
	fmt.Fprintf(w, "total: %.1fs\n", plan.TotalDuration)
	return nil
}

// printWaveType prints the band, tempo and pulse interval of hz.
func printWaveType(hz float64) {
	if err := brainwave.CheckHz(hz); err != nil {
		fmt.Printf("%g Hz: %s (%v)\n", hz, brainwave.WaveUnknown, err)
		return
	}
	fmt.Printf("%g Hz: %s (%.2f BPM, pulse every %.2f ms)\n",
		hz, brainwave.GetWaveType(hz), brainwave.TempoBPM(hz), brainwave.PulseInterval(hz)*1000)
}

// printGenerators prints available generators.
func printGenerators() {
	registry := generator.GetRegistered()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)

	fmt.Println("Available Generators:")
	for _, name := range names {
		g := registry[name]()
		fmt.Printf("  %-20s - %s\n", g.Name(), g.Description())
	}
}
