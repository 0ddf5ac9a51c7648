package storage

import "errors"

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicate 摘要记录 ID 已存在
	ErrDuplicate = errors.New("storage: duplicate summary id")
)
