// Command skypass predicts satellite passes from two-line element sets.
// It runs the HTTP service (serve) and offers one-shot propagate, observe
// and passes commands over a local TLE file.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/star/skypass/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries what every subcommand shares once flags are parsed.
type app struct {
	configFile string
	logLevel   string

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "skypass",
		Short: "Satellite pass prediction with SGP4/SDP4",
		Long: `skypass propagates NORAD two-line element sets with SGP4 (near-earth)
and SDP4 (deep-space), computes look angles from ground stations and
predicts rise, culmination and set times.

Configuration is read from skypass.toml or skypass.yaml in ., $HOME/.skypass
or /etc/skypass, and from SKYPASS_* environment variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: search for skypass.{toml,yaml})")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(a),
		newPropagateCmd(a),
		newObserveCmd(a),
		newPassesCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and builds the logger. The service logs to
// stdout; one-shot commands keep stdout for their output.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	var w io.Writer = cmd.ErrOrStderr()
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	if cmd.Name() == "serve" {
		w = cmd.OutOrStdout()
		level.Set(slog.LevelInfo)
	}
	a.logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))

	v := config.New(a.configFile)
	if a.logLevel != "" {
		v.Set("log.level", a.logLevel)
	}
	cfg, err := config.Load(v, a.logger)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	a.cfg = cfg
	if cmd.Name() == "serve" || a.logLevel != "" {
		level.Set(cfg.LogLevel)
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No configuration needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "skypass %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
