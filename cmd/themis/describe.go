package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wehubfusion/Themis/pkg/node"
	"github.com/wehubfusion/Themis/pkg/nodes"
	"github.com/wehubfusion/Themis/pkg/validate"
)

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [type]",
		Short: "Print node descriptions as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := nodes.NewDefaultRegistry(validate.DefaultOptions())
			if err != nil {
				return err
			}

			var out interface{} = registry.Descriptions()
			if len(args) == 1 {
				n, err := registry.Create(args[0])
				if err != nil {
					return fmt.Errorf("%w: %s (known: %v)", node.ErrUnknownNodeType, args[0], registry.Types())
				}
				out = n.Description()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
