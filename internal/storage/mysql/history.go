package mysql

import (
	"context"
	"encoding/json"
)

// InvocationRecord 表示一次 MCP 工具调用的落库结构。
type InvocationRecord struct {
	ID           string          `json:"id"`
	Tool         string          `json:"tool"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	Result       string          `json:"result,omitempty"`
	Success      bool            `json:"success"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	Source       string          `json:"source,omitempty"`
	CreatedAt    int64           `json:"created_at"`
}

// ToolStats 汇总单个工具的调用情况。
type ToolStats struct {
	Tool          string `json:"tool"`
	Invocations   int64  `json:"invocations"`
	Failures      int64  `json:"failures"`
	LastInvokedAt int64  `json:"last_invoked_at"`
}

// HistoryQuery 控制 ListLatest 的过滤条件。
type HistoryQuery struct {
	Limit int
	Tool  string
}

// HistoryRepository 抽象调用历史的持久化接口。
type HistoryRepository interface {
	Save(ctx context.Context, record InvocationRecord) error
	ListLatest(ctx context.Context, query HistoryQuery) ([]InvocationRecord, error)
	Stats(ctx context.Context) ([]ToolStats, error)
	Close() error
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func normaliseLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
