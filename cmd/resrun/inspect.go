package main

import (
	"errors"

	"github.com/artpar/resrun/core/errs"
	"github.com/artpar/resrun/core/formatter"
	"github.com/artpar/resrun/core/resource"
	"github.com/spf13/cobra"
)

func newInspectCmd(g *globalOptions) *cobra.Command {
	var (
		output  string
		methods bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <definition>",
		Short: "Show the canonical form of a definition",
		Long: `Load a definition, resolve its imports and print its canonical form.

The canonical form omits everything inherited unchanged from imports, so
it round-trips to the same resource.

Examples:
  resrun inspect app.yaml
  resrun inspect app.yaml -o json
  resrun inspect app.yaml --methods`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = "yaml"
				if methods {
					output = "table"
				}
			}
			f, err := formatter.Lookup(output)
			if err != nil {
				return err
			}

			app, res, err := g.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer app.Shutdown()

			if !methods {
				return f.FormatValue(cmd.OutOrStdout(), res.Serialize(), formatter.FormatOptions{})
			}

			records, err := methodRecords(res)
			if err != nil {
				return err
			}
			return f.FormatList(cmd.OutOrStdout(), records, formatter.FormatOptions{
				Columns: []string{"name", "kind", "description"},
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: yaml, json or table")
	cmd.Flags().BoolVar(&methods, "methods", false, "list visible methods instead")
	return cmd
}

// methodRecords lists the visible callable properties of res. Names
// ambiguous between imports are listed without a kind.
func methodRecords(res *resource.Resource) ([]map[string]any, error) {
	var records []map[string]any
	for _, key := range res.Keys() {
		child, err := res.GetChild(key)
		if errors.Is(err, errs.ErrAmbiguousProperty) {
			records = append(records, map[string]any{"name": key, "description": "ambiguous between imports"})
			continue
		}
		if err != nil {
			return nil, err
		}
		if child == nil || !child.IsCallable() || child.IsHidden() {
			continue
		}
		rec := map[string]any{"name": key, "kind": child.Kind().String()}
		if d := child.Meta().Description; d != "" {
			rec["description"] = d
		}
		records = append(records, rec)
	}
	return records, nil
}
