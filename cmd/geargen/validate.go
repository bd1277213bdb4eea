package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a pipeline definition without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			def, err := loadDefinition(file)
			if err != nil {
				return printErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d stages, %d artifacts, target %q)\n",
				file, len(def.Stages), len(def.Artifacts), def.Target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "pipeline.cue", "pipeline definition file")

	return cmd
}
