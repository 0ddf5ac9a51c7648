package cli

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"convwin/internal/config"
	"convwin/internal/storage"
	"convwin/pkg/logger"
)

// ErrJournalDisabled storage.enabled 为 false 时访问摘要日志
var ErrJournalDisabled = errors.New("summary journal is disabled (storage.enabled is false)")

// CLIContext 子命令共享的运行时状态
type CLIContext struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *zerolog.Logger
	StoragePath string
	Verbose     bool
	Quiet       bool

	mu      sync.Mutex
	journal *storage.DB
}

// Journal 懒加载摘要日志数据库；打开失败不缓存，下次调用重试
func (c *CLIContext) Journal() (*storage.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Config != nil && !c.Config.Storage.Enabled {
		return nil, ErrJournalDisabled
	}
	if c.journal != nil {
		return c.journal, nil
	}

	db, err := storage.Open(c.StoragePath)
	if err != nil {
		return nil, err
	}
	c.journal = db
	return db, nil
}

// Close 关闭已打开的资源，可重复调用
func (c *CLIContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.journal == nil {
		return nil
	}
	err := c.journal.Close()
	c.journal = nil
	return err
}

// Log 获取 Logger
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
