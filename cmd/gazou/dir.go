package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/gazou/internal/cli"
	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/registry"
)

func newDirCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dir",
		Short: "Manage registered directories",
	}
	cmd.AddCommand(newDirAddCmd(opts), newDirRemoveCmd(opts), newDirListCmd(opts))
	return cmd
}

func newDirAddCmd(opts *globalOptions) *cobra.Command {
	var (
		name   string
		rename bool
		wait   bool
	)
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a directory and index its images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			c := newAPIClient(opts.serverURL)
			root, err := c.addDirectory(ctx, models.RegisteredDirectory{Name: name, RootPath: abs, EnableRename: rename})
			if err != nil {
				return fmt.Errorf("add failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added: %s\n", root)
			if !wait {
				return nil
			}
			st, err := c.waitTask(ctx, root, 500*time.Millisecond, func(st *registry.TaskStatus) {
				if !st.Done && st.Total > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rIndexing %d/%d", st.Current, st.Total)
				}
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nIndexed %d of %d image(s), %d failed\n", st.Indexed, st.Total, st.Failed)
			if st.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "errors: %s\n", st.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the directory name)")
	cmd.Flags().BoolVar(&rename, "rename", false, "rename files to the name suggested by the embedding service")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the initial indexing to finish")
	return cmd
}

func newDirRemoveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>",
		Short: "Stop tracking a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := newAPIClient(opts.serverURL).removeDirectory(ctx, abs); err != nil {
				return fmt.Errorf("remove failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed: %s\n", abs)
			return nil
		},
	}
}

func newDirListCmd(opts *globalOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered directories",
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
			dirs, err := newAPIClient(opts.serverURL).directories(ctx)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			return cli.WriteDirectories(cmd.OutOrStdout(), dirs, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, compact or json")
	return cmd
}
