package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai"
)

// rootOptions 存放所有子命令共享的参数。
type rootOptions struct {
	configPath string
	envFile    string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd 构建 Cobra 命令树。
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "imbotrag",
		Short:         "Chat with a PDF, quiz yourself on it and evaluate the answers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config (defaults are used when empty)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the config")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newREPLCmd(opts),
		newIngestCmd(opts),
	)
	return root
}

// setup 加载 .env、配置与日志。
func (o *rootOptions) setup() (*ai.Config, *zap.Logger, error) {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}

	logger, err := newLogger(o.debug)
	if err != nil {
		return nil, nil, err
	}

	cfg := ai.DefaultConfig()
	if o.configPath != "" {
		cfg, err = ai.LoadConfig(o.configPath)
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("config loaded",
		zap.String("path", o.configPath),
		zap.String("default_model", cfg.DefaultModel),
		zap.String("cache_dir", cfg.RAG.CacheDir),
	)
	return cfg, logger, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if debug {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zcfg.Build()
}

// envOr 返回环境变量的值，为空时返回 fallback。
func envOr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}
