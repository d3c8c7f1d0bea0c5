package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/gazou/internal/embedding"
)

func newAuthCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the embedding service API key",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set-key [key]",
			Short: "Store the API key (reads stdin when no key is given)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := loadConfig(opts.configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				key := ""
				if len(args) == 1 {
					key = args[0]
				} else {
					line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					if err != nil && line == "" {
						return errors.New("no key given")
					}
					key = line
				}
				key = strings.TrimSpace(key)
				if key == "" {
					return errors.New("key must not be empty")
				}
				if err := embedding.NewFileCredentials(cfg.Credentials.APIKeyFile).SetAPIKey(key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "API key saved to %s\n", cfg.Credentials.APIKeyFile)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether an API key is configured",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := loadConfig(opts.configPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				_, ok, err := credentials(cfg).APIKey(context.Background())
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "no API key configured (set %s or run gazou auth set-key)\n", embedding.DefaultAPIKeyEnv)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "API key configured")
				return nil
			},
		},
	)
	return cmd
}
