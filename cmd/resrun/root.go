package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/resrun/bootstrap"
	"github.com/artpar/resrun/config"
	"github.com/artpar/resrun/core/formatter"
	"github.com/artpar/resrun/core/resource"
	"github.com/spf13/cobra"
)

// globalOptions holds flags shared by every command.
type globalOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "resrun",
		Short: "Compose, invoke and serve declarative resources",
		Long: `resrun builds typed, composable resources from YAML or JSON definitions.

Definitions import each other with "@import", declare methods with
"@input"/"@run" and react to events with "@listen".

Quick start:
  resrun inspect app.yaml            # Show the canonical definition
  resrun run app.yaml deploy --prod  # Invoke a method
  resrun serve app.yaml              # Serve methods over JSON-RPC

Configuration is read from resrun.yaml (or --config) with RESRUN_*
environment overrides.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "resrun.yaml", "config file path")

	cmd.AddCommand(
		newRunCmd(g),
		newInspectCmd(g),
		newEmitCmd(g),
		newServeCmd(g),
		newPublishCmd(g),
		newValidateCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		formatter.Default().FormatError(os.Stderr, err)
		os.Exit(1)
	}
}

func (g *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

func (g *globalOptions) newApp(cmd *cobra.Command, cfg *config.Config) (*bootstrap.App, error) {
	app, err := bootstrap.New(cfg, bootstrap.Options{
		Version: version,
		Output:  cmd.OutOrStdout(),
	})
	if err != nil {
		return nil, fmt.Errorf("error initializing: %w", err)
	}
	return app, nil
}

// open loads the configured definitions and then the one at ref.
func (g *globalOptions) open(cmd *cobra.Command, ref string) (*bootstrap.App, *resource.Resource, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	app, err := g.newApp(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx := cmd.Context()
	if _, err := app.LoadDefinitions(ctx); err != nil {
		app.Shutdown()
		return nil, nil, err
	}
	res, err := app.Open(ctx, ref)
	if err != nil {
		app.Shutdown()
		return nil, nil, err
	}
	return app, res, nil
}
