package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai"
	"github.com/IMBotPlatform/IMBotRAG/pkg/bot"
	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
)

func newREPLCmd(opts *rootOptions) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Chat in the terminal (type /help for commands)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			app, err := bot.Build(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			return runREPL(cmd.Context(), app, os.Stdin, cmd.OutOrStdout(), session)
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", ai.DefaultSessionID, "session id")
	return cmd
}

// terminalEmitter 把片段渲染为终端文本；错误加前缀。
var terminalEmitter = botcore.EmitterFunc(func(_ botcore.Update, _ string, chunk botcore.StreamChunk) (interface{}, error) {
	if chunk.Err != nil {
		return "⚠️  " + chunk.Content, nil
	}
	return chunk.Content, nil
})

// runREPL 逐行读取输入并打印流式回复，输入 "exit" 或 EOF 时结束。
func runREPL(ctx context.Context, app botcore.PipelineInvoker, in io.Reader, out io.Writer, session string) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "session %s, type /help for commands\n> ", session)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "exit" || line == "quit" {
			return nil
		}
		if line == "" {
			fmt.Fprint(out, "> ")
			continue
		}

		update := botcore.Update{
			SessionID: session,
			Text:      line,
			Metadata:  map[string]string{"source": "repl"},
		}
		streamID := uuid.NewString()
		for chunk := range app.Trigger(ctx, update, streamID) {
			text, err := terminalEmitter.Encode(update, streamID, chunk)
			if err != nil {
				return err
			}
			fmt.Fprint(out, text)
		}
		fmt.Fprint(out, "\n> ")
	}
	return scanner.Err()
}
