// Package migrations applies the embedded SQLite schema scripts in order.
//
// Each applied script is recorded in _migrations with a BLAKE3 checksum of its
// text. Run and Verify report scripts whose text changed after they were applied.
package migrations

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrChecksumMismatch 已执行的脚本内容被修改
var ErrChecksumMismatch = errors.New("migrations: checksum mismatch")

type migration struct {
	version  int
	name     string
	content  string
	checksum string
}

// Run 执行所有待执行的迁移；已执行脚本的校验和不一致时返回 ErrChecksumMismatch
func Run(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	scripts, err := loadScripts()
	if err != nil {
		return fmt.Errorf("load scripts: %w", err)
	}
	applied, err := appliedChecksums(db)
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}
	if err := verify(scripts, applied); err != nil {
		return err
	}

	for _, m := range scripts {
		if _, ok := applied[m.version]; ok {
			continue
		}
		if err := apply(db, m); err != nil {
			return fmt.Errorf("apply %s: %w", m.name, err)
		}
	}
	return nil
}

// Verify 检查已执行脚本与内嵌脚本一致
func Verify(db *sql.DB) error {
	scripts, err := loadScripts()
	if err != nil {
		return err
	}
	applied, err := appliedChecksums(db)
	if err != nil {
		return err
	}
	return verify(scripts, applied)
}

// Version 返回当前数据库版本
func Version(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM _migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Latest 返回内嵌脚本中的最高版本
func Latest() int {
	scripts, err := loadScripts()
	if err != nil || len(scripts) == 0 {
		return 0
	}
	return scripts[len(scripts)-1].version
}

// Pending 返回待执行的迁移版本列表
func Pending(db *sql.DB) ([]int, error) {
	scripts, err := loadScripts()
	if err != nil {
		return nil, err
	}
	applied, err := appliedChecksums(db)
	if err != nil {
		return nil, err
	}

	var pending []int
	for _, m := range scripts {
		if _, ok := applied[m.version]; !ok {
			pending = append(pending, m.version)
		}
	}
	return pending, nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			checksum TEXT NOT NULL DEFAULT '',
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// appliedChecksums maps applied versions to their recorded checksum.
func appliedChecksums(db *sql.DB) (map[int]string, error) {
	rows, err := db.Query("SELECT version, checksum FROM _migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			v   int
			sum string
		)
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, err
		}
		applied[v] = sum
	}
	return applied, rows.Err()
}

// verify compares recorded checksums with the embedded scripts. An empty
// recorded checksum is accepted.
func verify(scripts []migration, applied map[int]string) error {
	for _, m := range scripts {
		sum, ok := applied[m.version]
		if !ok || sum == "" || sum == m.checksum {
			continue
		}
		return fmt.Errorf("%w: %s", ErrChecksumMismatch, m.name)
	}
	return nil
}

// loadScripts returns the embedded scripts sorted by version.
// Files without a numeric prefix are ignored.
func loadScripts() ([]migration, error) {
	entries, err := fs.ReadDir(FS, "scripts")
	if err != nil {
		return nil, err
	}

	var scripts []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseVersion(entry.Name())
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(FS, "scripts/"+entry.Name())
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, migration{
			version:  version,
			name:     entry.Name(),
			content:  string(content),
			checksum: checksum(content),
		})
	}

	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].version < scripts[j].version
	})
	return scripts, nil
}

func checksum(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func parseVersion(filename string) (int, error) {
	prefix, _, found := strings.Cut(filename, "_")
	if !found {
		return 0, fmt.Errorf("invalid migration filename: %s", filename)
	}
	return strconv.Atoi(prefix)
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.content); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO _migrations (version, name, checksum) VALUES (?, ?, ?)",
		m.version, m.name, m.checksum); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}
