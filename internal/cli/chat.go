// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-answer/internal/config"
	"github.com/jeranaias/rigrun-answer/internal/model"
	"github.com/jeranaias/rigrun-answer/internal/telemetry"
	"github.com/jeranaias/rigrun-answer/internal/util"
)

// maxChatTurns bounds the history kept by an interactive session.
const maxChatTurns = 50

// =============================================================================
// LINE EDITING
// =============================================================================

// lineEditor provides input history and line editing for interactive chat.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor() *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	e := &lineEditor{line: line, historyFile: filepath.Join(dir, "chat_history")}

	if f, err := os.Open(e.historyFile); err == nil {
		_, _ = e.line.ReadHistory(f)
		f.Close()
	}
	return e
}

// ReadInput reads one line, adding non-empty input to the history.
func (e *lineEditor) ReadInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with owner-only permissions and restores the
// terminal.
func (e *lineEditor) Close() {
	if err := os.MkdirAll(filepath.Dir(e.historyFile), 0755); err == nil {
		if f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = e.line.WriteHistory(f)
			f.Close()
		}
	}
	e.line.Close()
}

// =============================================================================
// SESSION STATE
// =============================================================================

// chatAgent is the part of the agent an interactive session uses.
type chatAgent interface {
	Interact(ctx context.Context, req model.ChatRequest) *model.ChatResponse
	Title(ctx context.Context, turns []model.ConversationTurn) *model.TitleResponse
}

// chatSession holds one interactive conversation.
type chatSession struct {
	agent     chatAgent
	tracker   *telemetry.CostTracker
	out       io.Writer
	accountID int64
	mode      model.ChatMode

	history []model.ConversationTurn
}

// send answers input with the conversation so far as context. Only
// answered exchanges join the history.
func (s *chatSession) send(ctx context.Context, input string) {
	resp := s.agent.Interact(ctx, model.ChatRequest{
		Content:   input,
		Context:   s.history,
		AccountID: s.accountID,
		Mode:      s.mode,
	})
	printChatResponse(s.out, resp)
	fmt.Fprintln(s.out)

	if !resp.Success {
		return
	}
	s.history = append(s.history,
		model.NewTurn(model.RoleUser, input),
		model.NewTurn(model.RoleAssistant, resp.Response))
	s.history = model.LastTurns(s.history, maxChatTurns)
}

// handleCommand runs a slash command and reports whether the session
// continues.
func (s *chatSession) handleCommand(ctx context.Context, input string) bool {
	name := strings.ToLower(strings.Fields(input)[0])

	switch name {
	case "/exit", "/quit", "/q":
		return false

	case "/help", "/?":
		fmt.Fprintln(s.out, SectionStyle.Render("Commands"))
		for _, c := range [][2]string{
			{"/clear", "forget the conversation"},
			{"/history", "show the conversation"},
			{"/title", "suggest a title for the conversation"},
			{"/costs", "show usage for this session"},
			{"/exit", "leave the chat"},
		} {
			fmt.Fprintln(s.out, "  "+LabelStyle.Render(c[0])+ValueStyle.Render(c[1]))
		}

	case "/clear":
		s.history = nil
		fmt.Fprintln(s.out, SuccessStyle.Render("Conversation cleared."))

	case "/history":
		if len(s.history) == 0 {
			fmt.Fprintln(s.out, DimStyle.Render("No conversation yet."))
			break
		}
		width := terminalWidth(s.out) - 14
		for _, t := range s.history {
			fmt.Fprintf(s.out, "%s %s\n",
				LabelStyle.Width(12).Render(string(t.Role)),
				util.TruncateWidth(util.OneLine(t.Content), width))
		}

	case "/title":
		if len(s.history) == 0 {
			fmt.Fprintln(s.out, DimStyle.Render("Nothing to title yet."))
			break
		}
		resp := s.agent.Title(ctx, s.history)
		fmt.Fprintln(s.out, TitleStyle.Render(resp.Title))

	case "/costs":
		printSession(s.out, s.tracker.GetCurrentSession())

	default:
		fmt.Fprintln(s.out, WarningStyle.Render("Unknown command "+name+". Type /help for commands."))
	}
	return true
}

// =============================================================================
// COMMAND
// =============================================================================

func newChatCommand(a *app) *cobra.Command {
	var (
		accountID int64
		support   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat with conversation history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !IsTTY() {
				return NewUsageError("chat", "chat needs an interactive terminal; use ask for piped input")
			}

			svc, err := buildServices(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			session := &chatSession{
				agent:     svc.agent,
				tracker:   svc.tracker,
				out:       cmd.OutOrStdout(),
				accountID: accountID,
				mode:      model.ModeStandard,
			}
			if support {
				session.mode = model.ModeSupport
			}
			return runChat(cmd.Context(), session, a.cfg.Assistant.Name)
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "account id for database and document lookups")
	cmd.Flags().BoolVar(&support, "support", false, "chat in support mode")
	return cmd
}

// runChat is the read-answer loop. Ctrl+C at the prompt or Ctrl+D ends the
// session; Ctrl+C during an answer cancels only that answer.
func runChat(ctx context.Context, s *chatSession, assistant string) error {
	editor := newLineEditor()
	defer editor.Close()

	fmt.Fprintln(s.out, TitleStyle.Render(assistant))
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, /exit to leave."))

	for {
		input, err := editor.ReadInput(PromptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.out)
				printSession(s.out, s.tracker.GetCurrentSession())
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if !s.handleCommand(ctx, input) {
				printSession(s.out, s.tracker.GetCurrentSession())
				return nil
			}
			continue
		}

		msgCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
		s.send(msgCtx, input)
		cancel()
	}
}
