// Command scenesml runs time series through the panel overlays and writes the resulting frames
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/aouyang1/go-scenesml/config"
	"github.com/aouyang1/go-scenesml/metrics"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

var version = "dev"

type rootFlags struct {
	configPath string
	cpuProfile string
	metrics    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "scenesml",
		Short:         "Machine learning overlays for time series panels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&flags.cpuProfile, "cpuprofile", "", "write a CPU profile into this directory")
	rootCmd.PersistentFlags().BoolVar(&flags.metrics, "metrics", false, "print the prometheus metrics to stderr on exit")

	rootCmd.AddCommand(newBaselineCmd(flags), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// env is what every command runs with
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder *metrics.Recorder
	stop     func()
}

func (f *rootFlags) setup() (*env, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	e := &env{
		cfg:      cfg,
		logger:   cfg.Log.Logger(os.Stderr),
		recorder: metrics.New(),
		stop:     func() {},
	}
	if f.cpuProfile != "" {
		p := profile.Start(profile.CPUProfile, profile.ProfilePath(f.cpuProfile), profile.Quiet)
		e.stop = p.Stop
	}
	return e, nil
}

func (f *rootFlags) teardown(e *env) error {
	e.stop()
	if !f.metrics {
		return nil
	}
	return e.recorder.WriteText(os.Stderr)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err.Error())
		stop()
		os.Exit(1)
	}
}
