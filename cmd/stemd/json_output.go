package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON renders v to the command's stdout as two-space-indented JSON,
// trailed by a newline.
func writeJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
