package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wehubfusion/Themis/pkg/message"
	"github.com/wehubfusion/Themis/pkg/nodes"
	"github.com/wehubfusion/Themis/pkg/runner"
	"github.com/wehubfusion/Themis/pkg/validate"
)

type validateFlags struct {
	nodeType       string
	jobFile        string
	continueOnFail bool
}

func newValidateCmd() *cobra.Command {
	var flags validateFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run one validation job locally",
		Long: `Reads a job (items and node parameters) as JSON from --job or stdin, runs the
node over it and prints the output items. Exits with status 1 when the node halts.`,
		Example: `  themis validate --node yupValidation --job signup.json
  cat job.json | themis validate --continue-on-fail`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := cmd.InOrStdin()
			if flags.jobFile != "" && flags.jobFile != "-" {
				f, err := os.Open(flags.jobFile)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runValidate(cmd, in, flags)
		},
	}

	cmd.Flags().StringVar(&flags.nodeType, "node", "", "node type to run, overrides the job's nodeType")
	cmd.Flags().StringVar(&flags.jobFile, "job", "", "path of the job JSON, stdin when empty or -")
	cmd.Flags().BoolVar(&flags.continueOnFail, "continue-on-fail", false, "tag failing items instead of halting")
	return cmd
}

func runValidate(cmd *cobra.Command, in io.Reader, flags validateFlags) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read job: %w", err)
	}
	var job message.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	if flags.nodeType != "" {
		job.NodeType = flags.nodeType
	}
	if cmd.Flags().Changed("continue-on-fail") {
		job.ContinueOnFail = flags.continueOnFail
	}

	registry, err := nodes.NewDefaultRegistry(validate.DefaultOptions())
	if err != nil {
		return err
	}
	result := runner.NewExecutor(registry, zap.NewNop()).Handle(cmd.Context(), &job)
	if result.Failed() {
		if result.Error.ItemIndex >= 0 {
			return fmt.Errorf("%s (item %d)", result.Error.Message, result.Error.ItemIndex)
		}
		return fmt.Errorf("%s", result.Error.Message)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result.Items)
}
