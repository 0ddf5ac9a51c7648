package cli

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"convwin/internal/config"
	"convwin/pkg/logger"
)

// GlobalFlags 全局标志
type GlobalFlags struct {
	ConfigPath string
	EnvFile    string
	Verbose    bool
	Quiet      bool
}

var globalFlags GlobalFlags

// contextKey CLI 上下文键
type contextKey struct{}

// NewRootCmd 创建根命令
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "convwin",
		Short: "convwin - bounded conversation windows with rolling summaries",
		Long: `convwin keeps the live message window of a conversation thread bounded.
Messages pushed out of the window are compressed into prioritized observations
by a local or remote model and journaled to SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 跳过 version 和 help 命令的初始化
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			// .env 先于 viper 读取环境变量
			if err := loadEnvFile(globalFlags.EnvFile); err != nil {
				return err
			}

			// 确定配置路径
			configPath := globalFlags.ConfigPath
			if configPath == "" {
				var err error
				configPath, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}

			// 加载配置
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// 初始化 Logger
			logLevel := cfg.Log.Level
			if globalFlags.Verbose {
				logLevel = "debug"
			}
			if globalFlags.Quiet {
				logLevel = "error"
			}

			if err := logger.Init(logger.LogConfig{
				Level:  logLevel,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
				Output: cmd.ErrOrStderr(),
			}); err != nil {
				return err
			}

			// 确定存储路径
			storagePath := cfg.Storage.Path
			if storagePath == "" {
				storagePath, err = config.DefaultDataPath()
				if err != nil {
					return err
				}
			}

			cliCtx := &CLIContext{
				Config:      cfg,
				ConfigPath:  configPath,
				Logger:      logger.Get(),
				StoragePath: storagePath,
				Verbose:     globalFlags.Verbose,
				Quiet:       globalFlags.Quiet,
			}
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cliCtx))

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			// 关闭资源
			cliCtx := GetCLIContext(cmd)
			if cliCtx != nil {
				return cliCtx.Close()
			}
			return nil
		},
	}

	// 添加全局标志
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&globalFlags.EnvFile, "env-file", ".env", "dotenv file loaded before config")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "quiet mode")

	// 添加子命令
	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewReplayCmd())
	rootCmd.AddCommand(NewSummariesCmd())
	rootCmd.AddCommand(NewConfigCmd())

	return rootCmd
}

// loadEnvFile 加载 dotenv 文件，文件不存在时忽略。已存在的环境变量不会被覆盖。
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// GetCLIContext 从命令上下文获取 CLI 上下文
func GetCLIContext(cmd *cobra.Command) *CLIContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cliCtx, ok := ctx.Value(contextKey{}).(*CLIContext)
	if !ok {
		return nil
	}
	return cliCtx
}
