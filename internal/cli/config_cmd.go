// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-answer/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show, read and change configuration",
	}

	// target is the file config set and config init write to.
	target := func() (string, error) {
		if a.configPath != "" {
			return a.configPath, nil
		}
		return config.ConfigPathTOML()
	}
	save := func(cfg *config.Config, path string) error {
		if strings.HasSuffix(strings.ToLower(path), ".json") {
			return config.SaveJSON(cfg, path)
		}
		return config.SaveTOML(cfg, path)
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.cfg.String())
			return nil
		},
	}

	keys := &cobra.Command{
		Use:   "keys",
		Short: "List configuration keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := a.cfg.Get(args[0])
			if err != nil {
				return NewUsageError("config get", err.Error())
			}
			if config.IsSecret(args[0]) && v != "" {
				v = "[REDACTED]"
			}
			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), "config get", map[string]any{args[0]: v})
			}
			if list, ok := v.([]string); ok {
				v = strings.Join(list, ", ")
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value in the config file",
		Long: `Change one value in the config file and validate the result.

List values are given comma-separated.`,
		Example: `  rigrun-answer config set server.port 9000
  rigrun-answer config set routing.document_keywords "policy, handbook"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := target()
			if err != nil {
				return err
			}

			// Edit the file alone so environment overrides are not persisted.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				if strings.HasSuffix(strings.ToLower(path), ".json") {
					err = config.LoadJSON(cfg, path)
				} else {
					err = config.LoadTOML(cfg, path)
				}
				if err != nil {
					return NewConfigError("config set", err)
				}
			}

			if err := cfg.Set(args[0], args[1]); err != nil {
				return NewUsageError("config set", err.Error())
			}
			cfg.SetDefaults()
			if err := cfg.Validate(); err != nil {
				return NewConfigError("config set", err)
			}
			if err := save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("Set %s in %s.", args[0], path)))
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with every default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := target()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return NewUsageError("config init", path+" already exists; use --force to overwrite")
			}
			if err := save(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Wrote "+path))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := target()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}

	cmd.AddCommand(show, keys, get, set, initCmd, path)
	return cmd
}
