package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hospitalops/livemon/internal/app"
	"github.com/hospitalops/livemon/internal/conf"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "livemon",
		Short: "Live mirror of a remote monitoring system",
		Long: `livemon subscribes to a remote monitoring system, caches its health,
alerts and incidents locally, raises notifications and serves the result
over a local JSON API.

Examples:
  livemon --config livemon.yaml
  LIVEMON_MONITORING_MODE=poll livemon
  livemon validate --config livemon.yaml`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings, cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (YAML); environment overrides use the LIVEMON_ prefix")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(newValidateCmd(opts), newVersionCmd())
	return cmd
}

func (o *rootOptions) load() (*conf.Settings, error) {
	settings, err := conf.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		settings.Main.LogLevel = o.logLevel
	}
	return settings, nil
}

func run(ctx context.Context, settings *conf.Settings, logOut io.Writer) error {
	log := app.NewLogger(settings, logOut)
	a, err := app.New(settings, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := opts.load()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(settings); err != nil {
				return fmt.Errorf("encoding settings: %w", err)
			}
			return enc.Close()
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "livemon %s\n", app.Version)
		},
	}
}
