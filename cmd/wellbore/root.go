package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"wellbore/internal/config"
	"wellbore/internal/core"
	"wellbore/internal/dataset"
	"wellbore/internal/logging"
	"wellbore/internal/narrative"
	"wellbore/pkg/drillapi"
)

// app is the state shared by every subcommand once the root pre-run has
// loaded configuration.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	logLevel   string
	logFormat  string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "wellbore",
		Short:         "Drilling fluid viscosity and fracture gradient dashboard",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a TOML or YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: logfmt or json")

	root.AddCommand(newServeCmd(a), newReportCmd(a), newRenderCmd(a))
	return root
}

// load resolves configuration: defaults, then the config file, then
// WELLBORE_* variables, then flags.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(a.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.cfg = cfg
	a.logger = logger
	return nil
}

// controlFlags are the interpretation controls shared by report and render.
type controlFlags struct {
	file          string
	temperature   string
	concentration string
	formation     string
}

func (f *controlFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "CSV dataset to use instead of simulated data")
	cmd.Flags().StringVar(&f.temperature, "temperature", "", fmt.Sprintf("temperature in °F (%d-%d)", drillapi.MinTemperature, drillapi.MaxTemperature))
	cmd.Flags().StringVar(&f.concentration, "concentration", "", "polymer concentration: 0.5, 1 or 2")
	cmd.Flags().StringVar(&f.formation, "formation", "", "formation: Shale, Sandstone or Limestone")
}

func (f *controlFlags) request() (core.Request, error) {
	controls, err := narrative.ParseControls(f.temperature, f.concentration, f.formation)
	if err != nil {
		return core.Request{}, err
	}
	req := core.Request{Controls: controls}
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return core.Request{}, fmt.Errorf("read dataset: %w", err)
		}
		req.Upload = &dataset.Upload{Name: f.file, Data: data}
	}
	return req, nil
}
