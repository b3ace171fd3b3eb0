// Package main provides the journeymap entry point.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/generator"
	"github.com/osa030/journeymap/internal/app/playback"
	"github.com/osa030/journeymap/internal/infra/clock"
	"github.com/osa030/journeymap/internal/infra/config"
	"github.com/osa030/journeymap/internal/infra/logger"
)

var (
	app        = kingpin.New("journeymap", "Brainwave journey timeline engine")
	configPath = app.Flag("config", "Path to config file (default: built-in defaults)").Short('c').String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// play command
	playCmd     = app.Command("play", "Play the configured journey until it completes")
	playLoopHz  = playCmd.Flag("loop-hz", "Loop a single plateau at this frequency instead").Float64()
	playLoopSec = playCmd.Flag("loop-seconds", "Loop segment duration").Default("60").Float64()
	playFor     = playCmd.Flag("for", "Stop after this long (0: until the journey completes)").Default("0s").Duration()

	// serve command
	serveCmd       = app.Command("serve", "Serve the HTTP control API")
	serveAutostart = serveCmd.Flag("autostart", "Start the configured journey immediately").Bool()

	// compile command
	compileCmd  = app.Command("compile", "Print the compiled journey")
	compileJSON = compileCmd.Flag("json", "Print as JSON").Bool()

	// wavetype command
	waveTypeCmd = app.Command("wavetype", "Classify a beat frequency")
	waveTypeHz  = waveTypeCmd.Arg("hz", "Beat frequency in Hz").Required().Float64()

	// list-generators command
	listGeneratorsCmd = app.Command("list-generators", "List available generators and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case listGeneratorsCmd.FullCommand():
		printGenerators()
		return
	case waveTypeCmd.FullCommand():
		printWaveType(*waveTypeHz)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	closer, err := initLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	switch command {
	case playCmd.FullCommand():
		err = runPlay(cfg)
	case serveCmd.FullCommand():
		err = runServe(cfg)
	case compileCmd.FullCommand():
		err = runCompile(cfg, os.Stdout, *compileJSON)
	}
	if err != nil {
		zlog.Error().Msgf("journeymap: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default()
	}
	return config.Load(*configPath)
}

// initLogger initializes the logger from config, overridden by command-line flags.
func initLogger(cfg *config.Config) (io.Closer, error) {
	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	return logger.Init(loggerConfig)
}

// newEngine creates an engine from the engine config section.
func newEngine(cfg *config.Config, clk clock.Clock) *playback.Engine {
	return playback.NewEngine(playback.Config{
		Lookahead:         cfg.Engine.Lookahead(),
		SchedulerInterval: cfg.Engine.SchedulerInterval(),
		VisualFPS:         cfg.Engine.VisualFPS,
		Memory:            cfg.Engine.MemoryLimit,
	}, clk)
}

// attachGenerators builds every enabled generator and attaches it to the engine.
func attachGenerators(cfg *config.Config, engine *playback.Engine) (*generator.Rack, error) {
	rack, err := generator.Build(cfg.EnabledGenerators())
	if err != nil {
		return nil, errors.Wrap(err, "invalid generator config")
	}
	env := generator.Env{
		Bus:         engine.Bus(),
		Tempo:       engine,
		RateEpsilon: cfg.Engine.PulseRateEpsilon,
	}
	if err := rack.Attach(env); err != nil {
		return nil, errors.Wrap(err, "failed to attach generators")
	}
	for _, g := range rack.Generators() {
		zlog.Info().Msgf("journeymap: generator attached: %s", g.Name())
	}
	return rack, nil
}

// loadJourney loads the configured journey and loop into the engine.
func loadJourney(cfg *config.Config, engine *playback.Engine) error {
	if err := engine.LoadSegments(cfg.Journey.Segments); err != nil {
		return errors.Wrap(err, "failed to load journey")
	}
	if loop := cfg.Journey.Loop; loop != nil {
		if err := engine.LoopSegment(loop.Hz, loop.DurationSeconds); err != nil {
			return errors.Wrap(err, "failed to set loop segment")
		}
	}
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("journeymap: executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("journeymap: executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("journeymap: failed to execute hook: %s", hook)
		}
	}
}
