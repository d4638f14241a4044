package main

import (
	"fmt"
	"os"

	"github.com/artpar/resrun/bootstrap"
	"github.com/artpar/resrun/config"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		hotReload bool
		port      int
	)

	cmd := &cobra.Command{
		Use:   "serve <definition>",
		Short: "Serve a definition's methods over JSON-RPC",
		Long: `Start a JSON-RPC 2.0 server exposing the methods of a definition.

Clients call "__getMethods__" to list the visible methods and invoke them
with params {"arguments": [...], "options": {...}}. Another definition can
import the server with "@import": "http://host:port/path".

The server also exposes:
  /health, /health/live, /health/ready
  /version
  /metrics (when metrics.enabled)

Examples:
  resrun serve app.yaml
  resrun serve app.yaml --port 9000
  RESRUN_SERVER_PATH=/rpc resrun serve app.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg    *config.Config
				holder *config.Holder
				err    error
			)

			_, statErr := os.Stat(g.configPath)
			if statErr == nil && hotReload {
				// The holder only reloads the file; it starts watching once
				// the app exists.
				holder, err = config.NewHolder(g.configPath, bootstrap.SetupLogger(config.LoggingConfig{Level: "info"}, os.Stderr))
				if err != nil {
					return err
				}
				cfg = holder.Get()
			} else if cfg, err = g.loadConfig(); err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			app, err := g.newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if holder != nil {
				if err := app.WatchConfig(holder); err != nil {
					return fmt.Errorf("watch config: %w", err)
				}
			}

			ctx := cmd.Context()
			if _, err := app.LoadDefinitions(ctx); err != nil {
				return err
			}
			res, err := app.Open(ctx, args[0])
			if err != nil {
				return err
			}
			return app.Serve(ctx, res)
		},
	}

	cmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload the config file on change or SIGHUP")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}
