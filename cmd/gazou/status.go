package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hyperjump/gazou/internal/cli"
	"github.com/hyperjump/gazou/pkg/utils"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and directory status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := newAPIClient(opts.serverURL).status(ctx)
			if err != nil {
				return fmt.Errorf("status failed: %w", err)
			}
			return writeStatus(cmd.OutOrStdout(), st, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func writeStatus(w io.Writer, st *statusResponse, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Fprintf(w, "records:            %d   # indexed images\n", st.Records)
	if t, ok := st.Index["index_type"]; ok {
		fmt.Fprintf(w, "vector_index_type:  %v\n", t)
	}
	if v, ok := st.Index["vectors"]; ok {
		fmt.Fprintf(w, "vectors:            %v\n", v)
	}
	if st.DiskUsage != nil {
		fmt.Fprintf(w, "disk_usage:         %s\n", utils.HumanBytes(*st.DiskUsage))
	}
	fmt.Fprintln(w)
	return cli.WriteDirectories(w, st.Directories, format)
}
