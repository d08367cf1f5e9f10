// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-answer/internal/model"
)

// askOptions are the flags of ask.
type askOptions struct {
	accountID   int64
	siteContext string
	support     bool
}

func newAskCommand(a *app) *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question",
		Long: `Answer one question through the full pipeline and print the answer.

The question is read from stdin when no argument is given.`,
		Example: `  rigrun-answer ask "What is the travel approval policy?" --account 42
  echo "hello" | rigrun-answer ask`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := questionFrom(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			svc, err := buildServices(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			mode := model.ModeStandard
			if opts.support {
				mode = model.ModeSupport
			}
			resp := svc.agent.Interact(cmd.Context(), model.ChatRequest{
				Content:     question,
				AccountID:   opts.accountID,
				SiteContext: opts.siteContext,
				Mode:        mode,
			})

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				if err := a.printJSON(out, "ask", resp); err != nil {
					return err
				}
			} else {
				printChatResponse(out, resp)
			}
			if !resp.Success {
				return &CommandError{Command: "ask", Message: "the question could not be answered", ExitCode: ExitGeneralError}
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&opts.accountID, "account", 0, "account id for database and document lookups")
	cmd.Flags().StringVar(&opts.siteContext, "site-context", "", "site map context for links in casual replies")
	cmd.Flags().BoolVar(&opts.support, "support", false, "answer in support mode")
	return cmd
}

// questionFrom joins args, or reads stdin when there are none.
func questionFrom(args []string, stdin io.Reader) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && stdin != nil && (stdin != os.Stdin || !IsTTY()) {
		data, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
		if err != nil {
			return "", fmt.Errorf("reading question from stdin: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return "", NewUsageError("ask", "a question is required")
	}
	return question, nil
}

// printChatResponse prints the answer followed by a dim sources and usage
// line.
func printChatResponse(w io.Writer, resp *model.ChatResponse) {
	if !resp.Success {
		fmt.Fprintln(w, WarningStyle.Render(resp.Response))
	} else {
		displayAnswer(w, resp.Response)
	}

	meta := DimStyle.Render("sources: ") + SourceStyle.Render(resp.ConversationType)
	if resp.ImprovedQuestion != "" {
		meta += DimStyle.Render(" | interpreted as: " + resp.ImprovedQuestion)
	}
	fmt.Fprintln(w, meta)
	if line := usageLine(resp.UsageLog); line != "" {
		fmt.Fprintln(w, DimStyle.Render(line))
	}
	if resp.Extras != nil && len(resp.Extras.QueryTemplates) > 0 {
		fmt.Fprintln(w, DimStyle.Render(fmt.Sprintf("%d query template(s) offered to the database", len(resp.Extras.QueryTemplates))))
	}
}
