package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

func getJSON(baseURL BaseURLFunc, path string, out io.Writer) error {
	resp, err := http.Get(baseURL() + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(resp, out)
}

func postJSON(baseURL BaseURLFunc, path string, body any, out io.Writer) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	resp, err := http.Post(baseURL()+path, "application/json", rdr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(resp, out)
}

// printBody pretty-prints a JSON response, or the status line when the body
// is empty.
func printBody(resp *http.Response, out io.Writer) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s: %s", resp.Status, bytes.TrimSpace(raw))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		fmt.Fprintln(out, "status:", resp.Status)
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Fprintln(out, string(raw))
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewLogCommand constructs the `log` subcommand.
func NewLogCommand(baseURL BaseURLFunc) *cobra.Command {
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Log one event into the collector buffer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			eventType, _ := cmd.Flags().GetString("type")
			payloadJSON, _ := cmd.Flags().GetString("payload")
			metadataJSON, _ := cmd.Flags().GetString("metadata")
			if eventType == "" {
				return fmt.Errorf("--type is required")
			}
			body := map[string]any{"eventType": eventType}
			if payloadJSON != "" {
				var payload map[string]any
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					return fmt.Errorf("invalid --payload: %w", err)
				}
				body["payload"] = payload
			}
			if metadataJSON != "" {
				var metadata map[string]any
				if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
					return fmt.Errorf("invalid --metadata: %w", err)
				}
				body["metadata"] = metadata
			}
			return postJSON(baseURL, "/v1/log", body, cmd.OutOrStdout())
		},
	}
	logCmd.Flags().StringP("type", "t", "", "Event type, e.g. dom.click")
	logCmd.Flags().String("payload", "", "Event payload as a JSON object")
	logCmd.Flags().String("metadata", "", "Event metadata as a JSON object")
	return logCmd
}

// NewStatsCommand constructs the `stats` subcommand.
func NewStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show buffer, partition, and transport stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getJSON(baseURL, "/v1/stats", cmd.OutOrStdout())
		},
	}
}

// NewFlushCommand constructs the `flush` subcommand.
func NewFlushCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Export all buffered events now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return postJSON(baseURL, "/v1/flush", nil, cmd.OutOrStdout())
		},
	}
}

// NewClearCommand constructs the `clear` subcommand.
func NewClearCommand(baseURL BaseURLFunc) *cobra.Command {
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard all buffered events without exporting (requires --confirm)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			confirm, _ := cmd.Flags().GetBool("confirm")
			if !confirm {
				return fmt.Errorf("refusing to discard events without --confirm")
			}
			return postJSON(baseURL, "/v1/clear", nil, cmd.OutOrStdout())
		},
	}
	clearCmd.Flags().Bool("confirm", false, "Confirm discarding buffered events")
	return clearCmd
}

// NewConfigCommand constructs the `config` command group.
func NewConfigCommand(baseURL BaseURLFunc) *cobra.Command {
	configCmd := &cobra.Command{Use: "config", Short: "Runtime configuration"}

	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Show active configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getJSON(baseURL, "/v1/config", cmd.OutOrStdout())
		},
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Apply a configuration patch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			patch := map[string]any{}
			if cmd.Flags().Changed("output-dir") {
				v, _ := cmd.Flags().GetString("output-dir")
				patch["outputDir"] = v
			}
			if cmd.Flags().Changed("auto-flush") {
				v, _ := cmd.Flags().GetBool("auto-flush")
				patch["autoFlush"] = v
			}
			if cmd.Flags().Changed("size-threshold") {
				v, _ := cmd.Flags().GetInt64("size-threshold")
				patch["sizeThresholdBytes"] = v
			}
			if cmd.Flags().Changed("flush-interval-ms") {
				v, _ := cmd.Flags().GetInt64("flush-interval-ms")
				patch["flushIntervalMs"] = v
			}
			if cmd.Flags().Changed("filter") {
				v, _ := cmd.Flags().GetString("filter")
				patch["filter"] = v
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to set; pass at least one flag")
			}
			return postJSON(baseURL, "/v1/config", patch, cmd.OutOrStdout())
		},
	}
	setCmd.Flags().String("output-dir", "", "Export output directory")
	setCmd.Flags().Bool("auto-flush", false, "Enable threshold/timer flushes")
	setCmd.Flags().Int64("size-threshold", 0, "Flush threshold in bytes")
	setCmd.Flags().Int64("flush-interval-ms", 0, "Periodic flush cadence in ms (0 disables)")
	setCmd.Flags().String("filter", "", "CEL capture-filter expression (empty disables)")

	configCmd.AddCommand(getCmd, setCmd)
	return configCmd
}
