package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check URL [URL...]",
		Short: "Prints the last-updated date of each URL as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheckCommand,
	}
}

func runCheckCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("at least one URL required")
	}
	records := appInstance.Processor.ProcessURLs(cmd.Context(), args)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}
