package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"convwin/internal/conversation"
)

const summaryColumns = `id, thread_id, sequence, content, observations, placeholder, degraded, error,
	evicted_count, force_trimmed, evicted_roles, evicted_digest, window_before, window_after, created_at`

// AppendSummary 追加一条摘要记录，实现 window.Journal。
// 序号由日志分配：取 rec.Sequence 与该线程现有最大序号+1 中的较大者，
// 分配结果写回 rec.Sequence。记录只追加，不更新；ID 重复返回 ErrDuplicate。
func (db *DB) AppendSummary(ctx context.Context, rec *conversation.SummaryRecord) error {
	if rec == nil {
		return errors.New("append summary: nil record")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	observations, err := json.Marshal(nonNilObservations(rec.Observations))
	if err != nil {
		return fmt.Errorf("marshal observations: %w", err)
	}

	var roles *string
	if len(rec.EvictedRoles) > 0 {
		data, err := json.Marshal(rec.EvictedRoles)
		if err != nil {
			return fmt.Errorf("marshal evicted roles: %w", err)
		}
		s := string(data)
		roles = &s
	}

	// 单条语句内计算并插入序号，SQLite 写锁保证同一线程不会分配到相同序号
	var seq int
	err = db.QueryRowContext(ctx,
		`INSERT INTO conversation_summaries (`+summaryColumns+`)
		SELECT ?, ?, MAX(COALESCE(MAX(sequence), 0) + 1, ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		FROM conversation_summaries WHERE thread_id = ?
		RETURNING sequence`,
		rec.ID, rec.ThreadID, rec.Sequence, rec.Content, string(observations),
		rec.Placeholder, rec.Degraded, nullString(rec.Error),
		rec.EvictedCount, rec.ForceTrimmed, roles, nullString(rec.EvictedDigest),
		rec.WindowBefore, rec.WindowAfter, rec.CreatedAt.UTC(),
		rec.ThreadID,
	).Scan(&seq)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: id %q", ErrDuplicate, rec.ID)
		}
		return fmt.Errorf("insert summary: %w", err)
	}
	rec.Sequence = seq
	return nil
}

// ListSummaries 按序号升序列出线程的摘要记录，limit<=0 表示不限制。
// limit>0 时返回最新的 limit 条。
func (db *DB) ListSummaries(ctx context.Context, threadID string, limit int) ([]conversation.SummaryRecord, error) {
	query := `SELECT ` + summaryColumns + ` FROM conversation_summaries WHERE thread_id = ? ORDER BY sequence ASC`
	args := []any{threadID}
	if limit > 0 {
		query = `SELECT ` + summaryColumns + ` FROM conversation_summaries
			WHERE thread_id = ? ORDER BY sequence DESC LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var out []conversation.SummaryRecord
	for rows.Next() {
		rec, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if limit > 0 {
		slices.Reverse(out)
	}
	return out, nil
}

// CountSummaries 返回线程的摘要记录数
func (db *DB) CountSummaries(ctx context.Context, threadID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversation_summaries WHERE thread_id = ?", threadID,
	).Scan(&n)
	return n, err
}

// LatestSummary 返回线程序号最大的摘要记录
func (db *DB) LatestSummary(ctx context.Context, threadID string) (*conversation.SummaryRecord, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM conversation_summaries
		WHERE thread_id = ? ORDER BY sequence DESC LIMIT 1`, threadID)
	rec, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// FindByDigest 按被驱逐消息的摘要哈希查找记录
func (db *DB) FindByDigest(ctx context.Context, digest string) (*conversation.SummaryRecord, error) {
	if digest == "" {
		return nil, ErrNotFound
	}
	row := db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM conversation_summaries
		WHERE evicted_digest = ? ORDER BY created_at ASC LIMIT 1`, digest)
	rec, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(s scanner) (*conversation.SummaryRecord, error) {
	var (
		rec          conversation.SummaryRecord
		observations string
		errText      sql.NullString
		roles        sql.NullString
		digest       sql.NullString
	)
	err := s.Scan(
		&rec.ID, &rec.ThreadID, &rec.Sequence, &rec.Content, &observations,
		&rec.Placeholder, &rec.Degraded, &errText,
		&rec.EvictedCount, &rec.ForceTrimmed, &roles, &digest,
		&rec.WindowBefore, &rec.WindowAfter, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if observations != "" {
		if err := json.Unmarshal([]byte(observations), &rec.Observations); err != nil {
			return nil, fmt.Errorf("decode observations: %w", err)
		}
	}
	if roles.Valid && roles.String != "" {
		if err := json.Unmarshal([]byte(roles.String), &rec.EvictedRoles); err != nil {
			return nil, fmt.Errorf("decode evicted roles: %w", err)
		}
	}
	rec.Error = errText.String
	rec.EvictedDigest = digest.String
	return &rec, nil
}

func nonNilObservations(obs []conversation.Observation) []conversation.Observation {
	if obs == nil {
		return []conversation.Observation{}
	}
	return obs
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
