package mysql

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const memoryHistoryCap = 512

// MemoryHistoryRepository 使用本地 JSONL 文件记录调用历史，方便单机部署。
// 内存中只保留最近 memoryHistoryCap 条记录，统计数据覆盖文件中的全部记录。
type MemoryHistoryRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []InvocationRecord
	stats    map[string]*ToolStats
}

// NewMemoryHistoryRepository 创建基于文件的历史仓库。
func NewMemoryHistoryRepository(dataDir string) (*MemoryHistoryRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryHistoryRepository{
		dataFile: filepath.Join(dataDir, "invocations.log"),
		stats:    make(map[string]*ToolStats),
	}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录调用结果。
func (m *MemoryHistoryRepository) Save(_ context.Context, record InvocationRecord) error {
	if strings.TrimSpace(record.Tool) == "" {
		return fmt.Errorf("调用记录缺少工具名称")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化调用记录失败: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开调用日志失败: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入调用日志失败: %w", err)
	}

	m.push(record)
	return nil
}

// ListLatest 返回最近的调用记录，按时间倒序排列。
func (m *MemoryHistoryRepository) ListLatest(_ context.Context, query HistoryQuery) ([]InvocationRecord, error) {
	limit := normaliseLimit(query.Limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]InvocationRecord, 0, min(limit, len(m.records)))
	for _, record := range m.records {
		if query.Tool != "" && record.Tool != query.Tool {
			continue
		}
		results = append(results, record)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// Stats 返回按工具名称排序的累计统计。
func (m *MemoryHistoryRepository) Stats(context.Context) ([]ToolStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ToolStats, 0, len(m.stats))
	for _, s := range m.stats {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b ToolStats) int { return strings.Compare(a.Tool, b.Tool) })
	return out, nil
}

// Close 文件句柄按次打开，这里无需释放资源。
func (m *MemoryHistoryRepository) Close() error { return nil }

func (m *MemoryHistoryRepository) push(record InvocationRecord) {
	m.records = slices.Insert(m.records, 0, record)
	if len(m.records) > memoryHistoryCap {
		m.records = m.records[:memoryHistoryCap]
	}

	s, ok := m.stats[record.Tool]
	if !ok {
		s = &ToolStats{Tool: record.Tool}
		m.stats[record.Tool] = s
	}
	s.Invocations++
	if !record.Success {
		s.Failures++
	}
	s.LastInvokedAt = max(s.LastInvokedAt, record.CreatedAt)
}

func (m *MemoryHistoryRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取调用日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record InvocationRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil || record.Tool == "" {
			continue
		}
		m.push(record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析调用日志失败: %w", err)
	}
	return nil
}
