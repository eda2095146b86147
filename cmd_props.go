package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/olehluchkiv/enhancer/internal/props"
)

func newPropsCmd(a *app) *cobra.Command {
	var graph string
	cmd := &cobra.Command{
		Use:   "props <resource>",
		Short: "Find a properties resource in the module graph",
		Long: `Search the module graph, dependencies first, for the first jar that
carries the module manifest and the named resource, and print the resource.

Example:
  enhancer props --graph modules.yaml com/example/app.properties`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := props.LoadGraph(graph)
			if err != nil {
				return err
			}
			p, err := props.NewFinder(a.logger).Find(g, args[0])
			if errors.Is(err, props.ErrNotFound) {
				return fmt.Errorf("%s: not found in any module", args[0])
			}
			if err != nil {
				return err
			}
			a.logger.Info("properties found", "resource", args[0], "archive", p.Archive)
			_, err = cmd.OutOrStdout().Write(p.Data)
			return err
		},
	}
	cmd.Flags().StringVar(&graph, "graph", "modules.yaml", "YAML module graph")
	return cmd
}
