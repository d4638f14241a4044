package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/artpar/resrun/core/formatter"
	"github.com/spf13/cobra"
)

func newPublishCmd(g *globalOptions) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "publish [definition]",
		Short: "Store a definition in the local definition cache",
		Long: `Publish the canonical form of a named definition to the definition
cache under its "@name" and "@version". Other definitions can then import
it as "name" (latest publication) or "name@version".

Examples:
  resrun publish lib/deployer.yaml
  resrun publish --list`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return listPublications(cmd, g)
			}
			if len(args) == 0 {
				return errors.New("publish requires a definition")
			}

			app, res, err := g.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer app.Shutdown()

			pub, err := app.Publish(cmd.Context(), res)
			if err != nil {
				return err
			}
			ref := pub.Name
			if pub.Version != "" {
				ref += "@" + pub.Version
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", ref)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list published definitions")
	return cmd
}

func listPublications(cmd *cobra.Command, g *globalOptions) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	app, err := g.newApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if app.Store == nil {
		return errors.New("definition cache is disabled (cache.driver: none)")
	}
	pubs, err := app.Store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(pubs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No published definitions.")
		return nil
	}

	records := make([]map[string]any, len(pubs))
	for i, p := range pubs {
		records[i] = map[string]any{
			"name":      p.Name,
			"version":   p.Version,
			"published": p.PublishedAt.Format(time.RFC3339),
		}
	}
	return formatter.Default().FormatList(cmd.OutOrStdout(), records, formatter.FormatOptions{
		Columns: []string{"name", "version", "published"},
	})
}
