// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-answer/internal/model"
)

// =============================================================================
// SUPPORT
// =============================================================================

func newSupportCommand(a *app) *cobra.Command {
	var userID, accountID int64

	cmd := &cobra.Command{
		Use:   "support [message]",
		Short: "Answer a support message and say whether a human should follow up",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := questionFrom(args, cmd.InOrStdin())
			if err != nil {
				return NewUsageError("support", "a message is required")
			}

			svc, err := buildServices(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			resp := svc.agent.Support(cmd.Context(), model.SupportRequest{
				Message:   message,
				UserID:    userID,
				AccountID: accountID,
			})

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return a.printJSON(out, "support", resp)
			}
			printSupportResponse(out, resp)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "id of the user asking")
	cmd.Flags().Int64Var(&accountID, "account", 0, "account id for database and document lookups")
	return cmd
}

func printSupportResponse(w io.Writer, resp *model.SupportResponse) {
	if resp.NeedsHumanSupport {
		fmt.Fprintln(w, WarningStyle.Render(resp.Response))
		for _, s := range resp.Suggestions {
			fmt.Fprintln(w, "  - "+s)
		}
		return
	}
	displayAnswer(w, resp.Response)
	fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("intent: %s | confidence: %.1f", resp.Intent, resp.Confidence)))
}

// =============================================================================
// TITLE
// =============================================================================

func newTitleCommand(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "title",
		Short: "Suggest a title for a conversation",
		Long: `Suggest a short title for a conversation.

The conversation is read as JSON from --file or stdin, either as
{"messages": [...]} or as a bare array of {"role", "content"} turns.`,
		Example: `  rigrun-answer title --file conversation.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("opening conversation: %w", err)
				}
				defer f.Close()
				in = f
			}

			turns, err := readTurns(in)
			if err != nil {
				return err
			}

			svc, err := buildServices(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			resp := svc.agent.Title(cmd.Context(), turns)
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return a.printJSON(out, "title", resp)
			}
			fmt.Fprintln(out, resp.Title)
			if !resp.Success {
				return &CommandError{Command: "title", Message: "no title could be generated", ExitCode: ExitGeneralError}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON conversation file (default stdin)")
	return cmd
}

// readTurns decodes a conversation in either accepted shape.
func readTurns(r io.Reader) ([]model.ConversationTurn, error) {
	data, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	data = []byte(strings.TrimSpace(string(data)))

	var turns []model.ConversationTurn
	if len(data) > 0 && data[0] == '[' {
		err = json.Unmarshal(data, &turns)
	} else {
		var req model.TitleRequest
		err = json.Unmarshal(data, &req)
		turns = req.Messages
	}
	if err != nil {
		return nil, NewUsageError("title", "invalid conversation JSON: "+err.Error())
	}
	if len(turns) == 0 {
		return nil, NewUsageError("title", "the conversation has no messages")
	}
	for i, t := range turns {
		if !t.Role.IsValid() {
			return nil, NewUsageError("title", fmt.Sprintf("invalid role %q at turn %d", t.Role, i))
		}
	}
	return turns, nil
}
