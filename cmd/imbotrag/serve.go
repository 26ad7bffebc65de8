package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IMBotPlatform/IMBotRAG/pkg/api"
	"github.com/IMBotPlatform/IMBotRAG/pkg/bot"
)

const defaultListenAddr = ":8080"

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, sessionKey string
	var maxUpload int64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bot.Build(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			key, err := cookieKey(sessionKey)
			if err != nil {
				return err
			}
			store := sessions.NewCookieStore(key)
			store.Options.HttpOnly = true
			store.Options.SameSite = http.SameSiteLaxMode

			handler := api.NewHandler(app, store, api.WithLogger(logger.Named("http")), api.WithMaxUpload(maxUpload))
			server := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", zap.String("addr", addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", envOr("LISTEN_ADDR", defaultListenAddr), "listen address")
	cmd.Flags().StringVar(&sessionKey, "session-key", os.Getenv("IMBOTRAG_SESSION_KEY"), "cookie signing key (random when empty)")
	cmd.Flags().Int64Var(&maxUpload, "max-upload", 32<<20, "maximum upload size in bytes")
	return cmd
}

// cookieKey 使用给定密钥，为空时生成一次性随机密钥（重启后旧 cookie 失效）。
func cookieKey(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}
