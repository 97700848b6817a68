package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the collector client.
// It registers the telemetry command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "openbdr",
		Short: "OpenBDR client commands",
	}
	root.AddCommand(
		NewLogCommand(baseURL),
		NewStatsCommand(baseURL),
		NewFlushCommand(baseURL),
		NewClearCommand(baseURL),
		NewConfigCommand(baseURL),
	)
	return root
}
