// Package main provides the journeymap control CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/osa030/journeymap/internal/api/httpapi"
	"github.com/osa030/journeymap/internal/domain/journey"
)

var (
	app    = kingpin.New("journeymapctl", "journeymap control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set JOURNEYMAP_ADMIN_TOKEN env)").Envar("JOURNEYMAP_ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Get transport status")

	// plan command
	planCmd = app.Command("plan", "Show the compiled journey")

	// start command
	startCmd = app.Command("start", "Start or resume the timeline")

	// pause command
	pauseCmd = app.Command("pause", "Pause the timeline")

	// stop command
	stopCmd = app.Command("stop", "Stop the timeline")

	// loop command
	loopCmd     = app.Command("loop", "Loop a single plateau")
	loopHz      = loopCmd.Arg("hz", "Beat frequency in Hz").Required().Float64()
	loopSeconds = loopCmd.Arg("seconds", "Loop duration in seconds").Required().Float64()

	// clear-loop command
	clearLoopCmd = app.Command("clear-loop", "Leave loop mode")

	// edit command
	editCmd = app.Command("edit", "Change the frequency of the segment playing now")
	editHz  = editCmd.Arg("hz", "Beat frequency in Hz").Required().Float64()

	// seek command
	seekCmd      = app.Command("seek", "Move the timeline position")
	seekPosition = seekCmd.Arg("position", "Position in seconds").Required().Float64()

	// load command
	loadCmd  = app.Command("load", "Replace the journey with segments from a YAML file")
	loadFile = loadCmd.Arg("file", "YAML list of segments").Required().ExistingFile()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args and executes one command, writing its output to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	// Parse command
	command, err := app.Parse(args)
	if err != nil {
		return err
	}

	client := httpapi.NewClient(*server, *token, nil)

	// Execute command
	switch command {
	case statusCmd.FullCommand():
		return status(ctx, client, out)
	case planCmd.FullCommand():
		return plan(ctx, client, out)
	case startCmd.FullCommand():
		return report(out)(client.Start(ctx))
	case pauseCmd.FullCommand():
		return report(out)(client.Pause(ctx))
	case stopCmd.FullCommand():
		return report(out)(client.Stop(ctx))
	case loopCmd.FullCommand():
		return report(out)(client.Loop(ctx, *loopHz, *loopSeconds))
	case clearLoopCmd.FullCommand():
		return report(out)(client.ClearLoop(ctx))
	case editCmd.FullCommand():
		return report(out)(client.Edit(ctx, *editHz))
	case seekCmd.FullCommand():
		return report(out)(client.Seek(ctx, *seekPosition))
	case loadCmd.FullCommand():
		return load(ctx, client, out, *loadFile)
	}
	return nil
}

func status(ctx context.Context, client *httpapi.Client, out io.Writer) error {
	s, err := client.State(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "\n=== CURRENT TRANSPORT STATUS ===")
	fmt.Fprintf(out, "Session ID: %s\n", s.SessionID)
	fmt.Fprintf(out, "State: %s\n", s.State)
	fmt.Fprintf(out, "Position: %.1fs / %.1fs\n", s.TimelinePosition, s.TotalDuration)
	if s.CurrentSegmentIndex >= 0 {
		fmt.Fprintf(out, "Segment: %d\n", s.CurrentSegmentIndex)
	}
	fmt.Fprintf(out, "Frequency: %.2f Hz (%s)\n", s.CurrentHz, s.WaveType)
	fmt.Fprintf(out, "Tempo: %.2f BPM\n", s.CurrentBPM)
	if s.Loop != nil {
		fmt.Fprintf(out, "\nLooping:\n")
		fmt.Fprintf(out, "  Hz: %.2f\n", s.Loop.Hz)
		fmt.Fprintf(out, "  Duration: %.1fs\n", s.Loop.DurationSeconds)
		fmt.Fprintf(out, "  Iterations: %d\n", s.LoopIterations)
	}
	if s.RescheduleOwed {
		fmt.Fprintln(out, "\nJourney edited live; changes apply from the next start")
	}
	fmt.Fprintln(out)
	return nil
}

func plan(ctx context.Context, client *httpapi.Client, out io.Writer) error {
	p, err := client.Plan(ctx)
	if err != nil {
		return err
	}

	if len(p.Segments) == 0 {
		fmt.Fprintln(out, "No journey loaded")
		return nil
	}
	for _, seg := range p.Segments {
		marker := ""
		if !seg.Playable {
			marker = " (skipped)"
		}
		fmt.Fprintf(out, "[%d] %-10s %7.1fs..%7.1fs  %6.2f -> %6.2f Hz%s\n",
			seg.Index, seg.Type, seg.StartTimeSeconds, seg.EndTimeSeconds, seg.StartHz, seg.EndHz, marker)
	}
	fmt.Fprintf(out, "Total: %.1fs\n", p.TotalDuration)
	return nil
}

func load(ctx context.Context, client *httpapi.Client, out io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var segments []journey.Segment
	if err := yaml.Unmarshal(data, &segments); err != nil {
		return errors.Wrap(err, "invalid segments file")
	}
	return report(out)(client.LoadSegments(ctx, segments))
}

// report prints a control response. A rejected command is printed, not returned.
func report(out io.Writer) func(*httpapi.ControlResponse, error) error {
	return func(resp *httpapi.ControlResponse, err error) error {
		if err != nil {
			return err
		}

		if resp.Success {
			fmt.Fprintln(out, resp.Message)
		} else {
			fmt.Fprintf(out, "Failed: %s\n", resp.Message)
		}
		return nil
	}
}
