package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/IMBotRAG/pkg/command"
	"github.com/IMBotPlatform/IMBotRAG/pkg/eval"
)

// commandFactory 为每次请求构建一棵新的命令树。
func (a *App) commandFactory() *cobra.Command {
	root := &cobra.Command{
		Use:   "bot",
		Short: "Chat with a PDF, quiz yourself and evaluate the answers",
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "ping",
			Short: "Check that the bot is alive",
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Print("pong")
			},
		},
		&cobra.Command{
			Use:   "mode [chat|rag|quiz]",
			Short: "Show or switch the conversation mode",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				execCtx := command.FromContext(cmd.Context())
				session := execCtx.ConversationKey()
				if len(args) == 0 {
					cmd.Printf("Current mode: %s", a.Mode(session))
					return nil
				}
				mode, err := ParseMode(args[0])
				if err != nil {
					execCtx.SetError(err, UserMessage(err))
					return nil
				}
				if err := execCtx.SaveValues(command.ContextValues{settingMode: string(mode)}); err != nil {
					return err
				}
				cmd.Printf("Mode switched to %s", mode)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Clear all chat history, the quiz and evaluation samples",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.Reset(cmd.Context()); err != nil {
					return err
				}
				cmd.Print("All history cleared.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "eval [last]",
			Short: "Evaluate every recorded sample (or only the last one) and show the scores",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				execCtx := command.FromContext(cmd.Context())
				if len(args) == 1 {
					if args[0] != "last" {
						return fmt.Errorf("unknown argument %q, expected \"last\"", args[0])
					}
					result, err := a.EvaluateLast(cmd.Context())
					if err != nil {
						execCtx.SetError(err, UserMessage(err))
						return nil
					}
					execCtx.SetResponsePayload("Last sample\n- "+strings.ReplaceAll(result.String(), ", ", "\n- "), result)
					return nil
				}
				summary, err := a.Evaluate(cmd.Context())
				if err != nil {
					execCtx.SetError(err, UserMessage(err))
					return nil
				}
				execCtx.SetResponsePayload(summary.String(), summary)
				return nil
			},
		},
		&cobra.Command{
			Use:   "eval-toggle [on|off]",
			Short: "Show or change whether quiz answers are scored immediately",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				execCtx := command.FromContext(cmd.Context())
				session := execCtx.ConversationKey()
				on := !a.ShowEvaluation(session)
				if len(args) == 1 {
					v, err := parseSwitch(args[0])
					if err != nil {
						return err
					}
					on = v
				}
				if on && !a.evaluator.CanScore() {
					execCtx.SetError(eval.ErrNoScorer, UserMessage(eval.ErrNoScorer))
					return nil
				}
				if err := execCtx.SaveValues(command.ContextValues{settingShowEval: strconv.FormatBool(on)}); err != nil {
					return err
				}
				cmd.Printf("Show evaluation: %s", onOff(on))
				return nil
			},
		},
		&cobra.Command{
			Use:   "upload <path>",
			Short: "Ingest a PDF from the local filesystem",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				execCtx := command.FromContext(cmd.Context())
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read %s: %w", args[0], err)
				}
				h, err := a.Upload(cmd.Context(), filepath.Base(args[0]), data)
				if err != nil {
					execCtx.SetError(err, UserMessage(err))
					return nil
				}
				execCtx.SetResponsePayload(fmt.Sprintf("Loaded %s (%d chunks).", h.Name, h.Chunks), h)
				return nil
			},
		},
		&cobra.Command{
			Use:   "state",
			Short: "Show the session settings, document and quiz state",
			RunE: func(cmd *cobra.Command, args []string) error {
				session := command.FromContext(cmd.Context()).ConversationKey()
				sessions, err := a.Sessions(cmd.Context())
				if err != nil {
					return err
				}
				doc := "none"
				if h := a.Document(); h != nil {
					doc = fmt.Sprintf("%s (%d chunks)", h.Name, h.Chunks)
				}
				cmd.Printf("Session: %s\nMode: %s\nShow evaluation: %s\nDocument: %s\nQuiz: %s\nSamples: %d\nActive sessions: %s",
					session, a.Mode(session), onOff(a.ShowEvaluation(session)), doc, a.QuizState(), a.Samples(), listOrNone(sessions))
				return nil
			},
		},
		&cobra.Command{
			Use:   "history",
			Short: "Print the transcript of this session",
			RunE: func(cmd *cobra.Command, args []string) error {
				session := command.FromContext(cmd.Context()).ConversationKey()
				msgs, err := a.History(cmd.Context(), session)
				if err != nil {
					return err
				}
				if len(msgs) == 0 {
					cmd.Print("No messages yet.")
					return nil
				}
				var sb strings.Builder
				for _, m := range msgs {
					fmt.Fprintf(&sb, "[%s] %s\n", m.GetType(), m.GetContent())
				}
				cmd.Print(strings.TrimRight(sb.String(), "\n"))
				return nil
			},
		},
	)
	return root
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
