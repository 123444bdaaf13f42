package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalnine/simharness/internal/config"
	"github.com/signalnine/simharness/internal/logging"
	"github.com/signalnine/simharness/internal/metrics"
)

var (
	cfgFile      string
	envFile      string
	flagLogLevel string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "simharness",
		Short:        "Run external simulation solvers and verify their results",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "simharness.yaml", "solver catalogue path")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with SIMHARNESS_* settings")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override SIMHARNESS_LOG_LEVEL")
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newCleanCmd())
	return root
}

// app is the process-wide state shared by subcommands.
type app struct {
	settings config.Settings
	log      *zap.Logger
	metrics  *metrics.Recorder
}

func newApp() (*app, error) {
	settings, err := config.LoadSettings(envFile)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if flagLogLevel != "" {
		settings.LogLevel = flagLogLevel
	}
	log, err := logging.New(logging.Config{
		Level:    settings.LogLevel,
		Encoding: settings.LogEncoding,
		Output:   settings.LogOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return &app{settings: settings, log: log, metrics: metrics.New()}, nil
}

// close flushes the logger and dumps metrics when a metrics file is configured.
func (a *app) close() {
	if err := a.metrics.WriteTextfile(a.settings.MetricsFile); err != nil {
		a.log.Warn("writing metrics file", zap.String("path", a.settings.MetricsFile), zap.Error(err))
	}
	_ = a.log.Sync()
}
