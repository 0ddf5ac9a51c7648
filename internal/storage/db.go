// Package storage persists the conversation summary journal in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"convwin/internal/config"
	"convwin/internal/storage/migrations"

	_ "modernc.org/sqlite"
)

// DB 封装数据库连接
type DB struct {
	*sql.DB
	path string
}

// Open 打开数据库连接并执行迁移
func Open(path string) (*DB, error) {
	expandedPath, err := config.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expand path: %w", err)
	}
	if expandedPath == "" {
		return nil, fmt.Errorf("open database: empty path")
	}

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	db, err := sql.Open("sqlite", expandedPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// 单连接：PRAGMA 对所有语句生效，写入串行化
	db.SetMaxOpenConns(1)

	// 配置 SQLite
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{DB: db, path: expandedPath}, nil
}

// Path 返回数据库文件路径
func (db *DB) Path() string {
	return db.path
}

// SchemaVersion 返回已应用的最高迁移版本
func (db *DB) SchemaVersion() (int, error) {
	return migrations.Version(db.DB)
}

// Check 检查连接可用、没有未执行的迁移且脚本未被修改
func (db *DB) Check(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	pending, err := migrations.Pending(db.DB)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	if len(pending) > 0 {
		return fmt.Errorf("pending migrations: %v", pending)
	}
	return migrations.Verify(db.DB)
}

// Tx 封装事务
type Tx struct {
	*sql.Tx
}

// Begin 开启事务
func (db *DB) Begin() (*Tx, error) {
	tx, err := db.DB.Begin()
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx}, nil
}

// WithTx 在事务中执行函数，自动处理提交或回滚
func (db *DB) WithTx(fn func(*Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
