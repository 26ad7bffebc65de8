package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/IMBotRAG/pkg/bot"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <pdf> <query>",
		Short: "Ingest a PDF and print the passages retrieved for a query",
		Args:  cobra.MinimumNArgs(2),
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

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			h, err := app.Upload(cmd.Context(), filepath.Base(args[0]), data)
			if err != nil {
				return fmt.Errorf("%s: %w", bot.UserMessage(err), err)
			}

			query := strings.Join(args[1:], " ")
			docs, err := h.Invoke(cmd.Context(), query)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d chunks, digest %s\n", h.Name, h.Chunks, h.Digest[:12])
			for i, d := range docs {
				fmt.Fprintf(out, "\n[%d] score=%.3f page=%v\n%s\n", i+1, d.Score, d.Metadata["page"], d.PageContent)
			}
			return nil
		},
	}
}
