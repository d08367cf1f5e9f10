// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/templates"
	"github.com/jeranaias/rigrun-answer/internal/util"
)

func newTemplatesCommand(a *app) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage the query templates offered to the database source",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "template database (default templates.db_path)")

	open := func() (*templates.Store, error) {
		path := dbPath
		if path == "" {
			path = a.cfg.Templates.DBPath
		}
		if path == "" {
			return nil, NewUsageError("templates", "no template database configured")
		}
		return templates.OpenStore(path)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return a.printJSON(out, "templates list", records)
			}
			printTemplates(out, records)
			return nil
		},
	}

	var tmpl model.QueryTemplate
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a template",
		Args:  cobra.NoArgs,
		Example: `  rigrun-answer templates add --input "incidents last month" \
      --query "SELECT count(*) FROM incidents WHERE created_at >= date('now','-1 month')"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tmpl.Input == "" || tmpl.Query == "" {
				return NewUsageError("templates add", "--input and --query are required")
			}
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.Add(cmd.Context(), tmpl)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), "templates add", map[string]int64{"id": id})
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("Added template %d.", id)))
			return nil
		},
	}
	add.Flags().StringVar(&tmpl.Input, "input", "", "example question")
	add.Flags().StringVar(&tmpl.Query, "query", "", "query answering it")
	add.Flags().StringVar(&tmpl.Description, "description", "", "what the query returns")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return NewUsageError("templates remove", "id must be a number")
			}
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("template %d: %w", id, err)
			}
			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), "templates remove", map[string]int64{"id": id})
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("Removed template %d.", id)))
			return nil
		},
	}

	var replace bool
	importCmd := &cobra.Command{
		Use:   "import <file.toml|file.yaml>",
		Short: "Import templates from a TOML or YAML template file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := templates.LoadFile(args[0])
			if err != nil {
				return err
			}
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			var n int
			if replace {
				n, err = store.Replace(cmd.Context(), list)
			} else {
				for _, t := range list {
					if _, err = store.Add(cmd.Context(), t); err != nil {
						break
					}
					n++
				}
			}
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return a.printJSON(cmd.OutOrStdout(), "templates import", map[string]int{"imported": n})
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render(fmt.Sprintf("Imported %d template(s).", n)))
			return nil
		},
	}
	importCmd.Flags().BoolVar(&replace, "replace", false, "replace all stored templates")

	cmd.AddCommand(list, add, remove, importCmd)
	return cmd
}

func printTemplates(w io.Writer, records []templates.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No templates stored."))
		return
	}

	width := terminalWidth(w)
	inputWidth := width / 3
	queryWidth := width - inputWidth - 10

	fmt.Fprintln(w, SectionStyle.Render(
		util.PadRight("ID", 6)+util.PadRight("INPUT", inputWidth+2)+"QUERY"))
	for _, r := range records {
		fmt.Fprintf(w, "%s%s%s\n",
			util.PadRight(strconv.FormatInt(r.ID, 10), 6),
			util.PadRight(util.TruncateWidth(util.OneLine(r.Input), inputWidth), inputWidth+2),
			DimStyle.Render(util.TruncateWidth(util.OneLine(r.Query), queryWidth)))
	}
}
