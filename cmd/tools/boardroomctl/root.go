package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/boardroom/internal/app"
	"github.com/zhouzirui/boardroom/internal/config"
	"github.com/zhouzirui/boardroom/internal/logging"
	"github.com/zhouzirui/boardroom/internal/service/ai"
)

// cli 保存全局 flag 与按需装配的服务。
type cli struct {
	envFile    string
	logLevel   string
	classifier string

	// gateway 非空时替代配置中的模型，测试使用。
	gateway ai.Gateway
	app     *app.App
	logger  *zap.Logger
}

func newRootCmd(gateway ai.Gateway) *cobra.Command {
	c := &cli{gateway: gateway}

	root := &cobra.Command{
		Use:           "boardroomctl",
		Short:         "Operate the AI boardroom from a terminal",
		Long:          "boardroomctl runs one board orchestration against the configured model,\nlists the persona registry, or walks the onboarding script interactively.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return c.teardown()
		},
	}

	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.classifier, "classifier", "", "override BOARDROOM_CLASSIFIER (llm, keyword)")

	root.AddCommand(newAskCmd(c), newPersonasCmd(c), newOnboardCmd(c))
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	if c.envFile != "" {
		// 缺少 .env 时直接使用进程环境变量。
		_ = godotenv.Load(c.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Log = config.LogConfig{Level: c.logLevel, Format: "console"}
	if c.classifier != "" {
		cfg.Boardroom.Classifier = c.classifier
	}
	// 命令行只做一次性运行，不落盘。
	cfg.Store.Driver = "memory"

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	c.logger = logger

	c.app, err = app.Build(cmd.Context(), cfg, c.gateway, logger)
	return err
}

func (c *cli) teardown() error {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	if c.app != nil {
		return c.app.Close()
	}
	return nil
}
