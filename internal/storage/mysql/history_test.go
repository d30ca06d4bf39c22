package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHistoryRepositoryPersistsAndRestores(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := NewMemoryHistoryRepository(dir)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, InvocationRecord{Tool: "scrape_trending_tokens", Success: true, CreatedAt: 10}))
	require.NoError(t, repo.Save(ctx, InvocationRecord{Tool: "post_to_twitter", Success: false, ErrorCode: "NOT_CONFIGURED", CreatedAt: 11}))
	require.NoError(t, repo.Save(ctx, InvocationRecord{
		Tool:      "scrape_trending_tokens",
		Arguments: json.RawMessage(`{"limit":5}`),
		Success:   true,
		CreatedAt: 12,
	}))

	latest, err := repo.ListLatest(ctx, HistoryQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(12), latest[0].CreatedAt)
	assert.Equal(t, "post_to_twitter", latest[1].Tool)
	assert.NotEmpty(t, latest[0].ID)

	filtered, err := repo.ListLatest(ctx, HistoryQuery{Tool: "post_to_twitter"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "NOT_CONFIGURED", filtered[0].ErrorCode)

	restored, err := NewMemoryHistoryRepository(dir)
	require.NoError(t, err)
	again, err := restored.ListLatest(ctx, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.JSONEq(t, `{"limit":5}`, string(again[0].Arguments))

	stats, err := restored.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ToolStats{
		{Tool: "post_to_twitter", Invocations: 1, Failures: 1, LastInvokedAt: 11},
		{Tool: "scrape_trending_tokens", Invocations: 2, Failures: 0, LastInvokedAt: 12},
	}, stats)
}

func TestMemoryHistoryRepositoryCapsRecentButCountsAll(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	var lines []byte
	for i := range memoryHistoryCap + 10 {
		encoded, err := json.Marshal(InvocationRecord{ID: fmt.Sprint(i), Tool: "analyze_sentiment", Success: true, CreatedAt: int64(i)})
		require.NoError(t, err)
		lines = append(lines, encoded...)
		lines = append(lines, '\n')
	}
	lines = append(lines, []byte("not json\n")...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invocations.log"), lines, 0o644))

	repo, err := NewMemoryHistoryRepository(dir)
	require.NoError(t, err)
	latest, err := repo.ListLatest(ctx, HistoryQuery{Limit: maxListLimit})
	require.NoError(t, err)
	assert.Len(t, latest, maxListLimit)
	assert.Equal(t, int64(memoryHistoryCap+9), latest[0].CreatedAt)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(memoryHistoryCap+10), stats[0].Invocations)
}

func TestMemoryHistoryRepositoryRejectsMissingTool(t *testing.T) {
	repo, err := NewMemoryHistoryRepository(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, repo.Save(context.Background(), InvocationRecord{}))
}

func TestSQLHistoryRepositorySave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	repo := NewSQLHistoryRepositoryFromDB(db)
	defer repo.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tool_invocations")).
		WithArgs("inv-1", "check_token_balance", `{"mint":"m"}`, "{}", true, "", "", int64(42), "mcp", int64(100)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Save(context.Background(), InvocationRecord{
		ID:         "inv-1",
		Tool:       "check_token_balance",
		Arguments:  json.RawMessage(`{"mint":"m"}`),
		Result:     "{}",
		Success:    true,
		DurationMS: 42,
		Source:     "mcp",
		CreatedAt:  100,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHistoryRepositoryListLatestFiltersByTool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	repo := NewSQLHistoryRepositoryFromDB(db)
	defer repo.Close()

	columns := []string{"id", "tool", "arguments", "result", "success", "error_code", "error_message", "duration_ms", "source", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM tool_invocations WHERE tool = ? ORDER BY created_at DESC LIMIT ?")).
		WithArgs("post_to_twitter", defaultListLimit).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("b", "post_to_twitter", `{"text":"gm"}`, nil, false, "RATE_LIMITED", "slow down", 5, "api", 20).
			AddRow("a", "post_to_twitter", nil, "ok", true, "", nil, 3, "mcp", 10))

	records, err := repo.ListLatest(context.Background(), HistoryQuery{Tool: "post_to_twitter"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "RATE_LIMITED", records[0].ErrorCode)
	assert.Equal(t, "slow down", records[0].ErrorMessage)
	assert.JSONEq(t, `{"text":"gm"}`, string(records[0].Arguments))
	assert.Nil(t, records[1].Arguments)
	assert.Equal(t, "ok", records[1].Result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLHistoryRepositoryStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	repo := NewSQLHistoryRepositoryFromDB(db)
	defer repo.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM tool_invocations GROUP BY tool ORDER BY tool")).
		WillReturnRows(sqlmock.NewRows([]string{"tool", "count", "failures", "last"}).
			AddRow("analyze_sentiment", 4, 1, 99))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ToolStats{{Tool: "analyze_sentiment", Invocations: 4, Failures: 1, LastInvokedAt: 99}}, stats)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsAppliesPendingFiles(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS task_states")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs("0002", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, runMigrations(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadMigrationFilesOrdersByVersion(t *testing.T) {
	files, err := loadMigrationFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "0001", files[0].version)
	assert.Equal(t, "0002", files[1].version)
	assert.Len(t, files[0].statements, 1)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{DSN: "  "})
	assert.Error(t, err)
}

func TestMigrationFilesAreOrdered(t *testing.T) {
	files, err := loadMigrationFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "0001", files[0].version)
	assert.Equal(t, "0002", files[1].version)
	assert.Contains(t, files[0].statements[0], "tool_invocations")
}

func TestSplitSQLStatements(t *testing.T) {
	got := splitSQLStatements("-- header; ignored\nCREATE TABLE a (x INT);\n\n  ;INSERT INTO a VALUES (1);")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "INSERT INTO a VALUES (1)"}, got)
	assert.Equal(t, "0003", parseMigrationVersion("0003_add_index.sql"))
	assert.Equal(t, "0004", parseMigrationVersion("0004.sql"))
}
