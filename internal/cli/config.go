package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"convwin/internal/config"
)

// 敏感配置键（需要脱敏）
var sensitiveKeys = map[string]bool{
	"openai.api_key":    true,
	"anthropic.api_key": true,
}

// NewConfigCmd 创建 config 命令组
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "Get, set, list and initialize configuration values",
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := config.Get(key)
			if value == nil {
				return fmt.Errorf("key not found: %s", key)
			}
			if s, ok := value.(string); ok && sensitiveKeys[key] {
				value = maskValue(s)
			}

			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> [value]",
		Short: "Set a configuration value",
		Long: `Set a configuration value.

When the value of an API key is omitted it is read from stdin, hidden
when stdin is a terminal.`,
		Example: `  convwin config set window.max_window 30
  convwin config set openai.api_key`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			if !viper.IsSet(key) {
				return fmt.Errorf("unknown config key: %s", key)
			}

			var value string
			if len(args) == 2 {
				value = args[1]
			} else {
				if !sensitiveKeys[key] {
					return fmt.Errorf("missing value for %s", key)
				}
				secret, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), key)
				if err != nil {
					return err
				}
				value = secret
			}

			if err := config.Set(key, value); err != nil {
				return fmt.Errorf("set config: %w", err)
			}

			if sensitiveKeys[key] {
				value = maskValue(value)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// readSecret 读取敏感值；终端下隐藏输入
func readSecret(in io.Reader, prompt io.Writer, key string) (string, error) {
	var raw string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "Enter %s: ", key)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", key, err)
		}
		raw = string(b)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read %s: %w", key, err)
		}
		raw = line
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("%s cannot be empty", key)
	}
	return value, nil
}

func newConfigListCmd() *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := flattenSettings("", viper.AllSettings())
			sort.Strings(keys)

			out := cmd.OutOrStdout()
			for _, key := range keys {
				value := config.Get(key)

				// 脱敏处理
				if sensitiveKeys[key] && !showAll {
					if s, ok := value.(string); ok && s != "" {
						value = maskValue(s)
					}
				}

				fmt.Fprintf(out, "%s = %v\n", key, value)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showAll, "all", false, "show sensitive values")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.Path())
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the current configuration to the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}

			path := cliCtx.ConfigPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			if err := config.SaveTo(cliCtx.Config, path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	return cmd
}

// flattenSettings 将嵌套配置展开为点分隔的键
func flattenSettings(prefix string, settings map[string]any) []string {
	var keys []string

	for k, v := range settings {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if nested, ok := v.(map[string]any); ok {
			keys = append(keys, flattenSettings(key, nested)...)
		} else {
			keys = append(keys, key)
		}
	}

	return keys
}

// maskValue 脱敏处理
func maskValue(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
