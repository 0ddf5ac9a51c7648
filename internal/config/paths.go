// Package config loads convwin configuration from defaults, a YAML file and
// the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the configuration directory.
const HomeEnv = "CONVWIN_HOME"

// DefaultConfigDir 返回配置目录：$CONVWIN_HOME，否则 ~/.convwin
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ExpandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".convwin"), nil
}

// DefaultConfigPath 返回默认配置文件路径
func DefaultConfigPath() (string, error) {
	return inConfigDir("config.yaml")
}

// DefaultDataPath 返回默认摘要日志数据库路径
func DefaultDataPath() (string, error) {
	return inConfigDir("summaries.db")
}

func inConfigDir(name string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ExpandPath 展开 $VAR 环境变量以及开头的 ~
func ExpandPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if path == "" {
		return "", nil
	}

	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
