package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SQLHistoryRepository 使用 MySQL 存储调用历史。
type SQLHistoryRepository struct {
	db *sql.DB
}

// NewSQLHistoryRepository 打开连接池并执行迁移。
func NewSQLHistoryRepository(ctx context.Context, cfg Config) (*SQLHistoryRepository, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SQLHistoryRepository{db: db}, nil
}

// NewSQLHistoryRepositoryFromDB 复用已经完成迁移的连接池。
func NewSQLHistoryRepositoryFromDB(db *sql.DB) *SQLHistoryRepository {
	return &SQLHistoryRepository{db: db}
}

// Save 将调用记录写入 MySQL。
func (s *SQLHistoryRepository) Save(ctx context.Context, record InvocationRecord) error {
	if strings.TrimSpace(record.Tool) == "" {
		return fmt.Errorf("调用记录缺少工具名称")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	const stmt = `INSERT INTO tool_invocations
        (id, tool, arguments, result, success, error_code, error_message, duration_ms, source, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.Tool,
		string(record.Arguments),
		record.Result,
		record.Success,
		record.ErrorCode,
		record.ErrorMessage,
		record.DurationMS,
		record.Source,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入调用记录失败: %w", err)
	}
	return nil
}

// ListLatest 返回最近的调用记录。
func (s *SQLHistoryRepository) ListLatest(ctx context.Context, query HistoryQuery) ([]InvocationRecord, error) {
	stmt := `SELECT id, tool, arguments, result, success, error_code, error_message, duration_ms, source, created_at
        FROM tool_invocations`
	args := make([]any, 0, 2)
	if query.Tool != "" {
		stmt += ` WHERE tool = ?`
		args = append(args, query.Tool)
	}
	stmt += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, normaliseLimit(query.Limit))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("查询调用记录失败: %w", err)
	}
	defer rows.Close()

	var records []InvocationRecord
	for rows.Next() {
		var (
			record    InvocationRecord
			arguments sql.NullString
			result    sql.NullString
			message   sql.NullString
		)
		if err := rows.Scan(
			&record.ID,
			&record.Tool,
			&arguments,
			&result,
			&record.Success,
			&record.ErrorCode,
			&message,
			&record.DurationMS,
			&record.Source,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("解析调用记录失败: %w", err)
		}
		if arguments.String != "" {
			record.Arguments = []byte(arguments.String)
		}
		record.Result = result.String
		record.ErrorMessage = message.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历调用记录失败: %w", err)
	}
	return records, nil
}

// Stats 按工具名称聚合调用次数与失败次数。
func (s *SQLHistoryRepository) Stats(ctx context.Context) ([]ToolStats, error) {
	const stmt = `SELECT tool, COUNT(*), COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0), MAX(created_at)
        FROM tool_invocations GROUP BY tool ORDER BY tool`

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("统计调用记录失败: %w", err)
	}
	defer rows.Close()

	var stats []ToolStats
	for rows.Next() {
		var st ToolStats
		if err := rows.Scan(&st.Tool, &st.Invocations, &st.Failures, &st.LastInvokedAt); err != nil {
			return nil, fmt.Errorf("解析统计结果失败: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历统计结果失败: %w", err)
	}
	return stats, nil
}

// Close 关闭底层连接池。
func (s *SQLHistoryRepository) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
