package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func newClockedStore(start time.Time) (*MemoryStore, *time.Time) {
	store := NewMemoryStore()
	now := start
	store.now = func() time.Time { return now }
	return store, &now
}

func seedTasks(t *testing.T, store *MemoryStore, clock *time.Time) {
	t.Helper()
	ctx := context.Background()
	tasks := []*Task{
		{ID: "t1", Tool: "scrape_trending_tokens", Arguments: map[string]any{"platform": "rss"}, Status: StatusPending, MaxRetries: 3},
		{ID: "t2", Tool: "post_to_twitter", Arguments: map[string]any{"text": "gm frens"}, Status: StatusPending, MaxRetries: 3},
		{ID: "t3", Tool: "analyze_sentiment", Arguments: map[string]any{"symbol": "SOL"}, Status: StatusPending, MaxRetries: 3},
	}
	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
		*clock = clock.Add(30 * time.Second)
	}
	if err := store.MarkFailed(ctx, "t2", CodeTaskProcessing, "Twitter credentials not configured", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	*clock = clock.Add(30 * time.Second)
	if err := store.MarkSucceeded(ctx, "t3", json.RawMessage(`{"sentiment":"bullish"}`)); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	store, clock := newClockedStore(base)
	seedTasks(t, store, clock)
	ctx := context.Background()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != "t3" || all[2].ID != "t1" {
		t.Fatalf("expected newest task first, got %s..%s", all[0].ID, all[2].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" || failed[0].ErrorCode != string(CodeTaskProcessing) {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	withResult, err := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(withResult) != 1 || withResult[0].ID != "t3" {
		t.Fatalf("unexpected result list: %+v", withResult)
	}

	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(base.Add(45 * time.Second))}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 tasks to match since filter, got %d", len(recent))
	}

	byTool, err := store.List(ctx, buildListOptions([]ListOption{WithTool("scrape_trending_tokens")}))
	if err != nil {
		t.Fatalf("list by tool: %v", err)
	}
	if len(byTool) != 1 || byTool[0].ID != "t1" {
		t.Fatalf("unexpected tool list: %+v", byTool)
	}

	byQuery, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("GM FRENS")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "t2" {
		t.Fatalf("query should match arguments case-insensitively: %+v", byQuery)
	}

	paged, err := store.List(ctx, buildListOptions([]ListOption{WithSortOrder(SortByUpdatedAsc), WithOffset(1), WithLimit(1)}))
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "t2" {
		t.Fatalf("unexpected page: %+v", paged)
	}

	beyond, err := store.List(ctx, buildListOptions([]ListOption{WithOffset(10)}))
	if err != nil || len(beyond) != 0 {
		t.Fatalf("offset past the end should be empty: %v %+v", err, beyond)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	store, clock := newClockedStore(base)
	seedTasks(t, store, clock)
	ctx := context.Background()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}
	if stats.NewestUpdatedAt != base.Add(120*time.Second).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}

	withoutResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(false)}))
	if err != nil {
		t.Fatalf("stats without result: %v", err)
	}
	if withoutResults.Total != 2 || withoutResults.Pending != 1 || withoutResults.Failed != 1 {
		t.Fatalf("unexpected stats without result: %+v", withoutResults)
	}

	empty, err := store.Stats(ctx, buildListOptions([]ListOption{WithStatuses(StatusRunning)}))
	if err != nil {
		t.Fatalf("stats running: %v", err)
	}
	if empty.Total != 0 || empty.OldestUpdatedAt != 0 || empty.NewestUpdatedAt != 0 {
		t.Fatalf("unexpected empty stats: %+v", empty)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Task{ID: "c1", Tool: "post_to_twitter", Status: StatusPending, MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "c1", Tool: "post_to_twitter"}); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("duplicate create should conflict, got %v", err)
	}

	claimed, err := store.Claim(ctx, "c1")
	if err != nil || claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("first claim: %+v %v", claimed, err)
	}
	if _, err := store.Claim(ctx, "c1"); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("claiming a running task should conflict, got %v", err)
	}

	if err := store.MarkFailed(ctx, "c1", CodeTaskProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	claimed, err = store.Claim(ctx, "c1")
	if err != nil || claimed.Attempts != 2 || claimed.LastError != "" {
		t.Fatalf("retry claim: %+v %v", claimed, err)
	}
	if err := store.MarkFailed(ctx, "c1", CodeTaskProcessing, "boom", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := store.Get(ctx, "c1")
	if !got.Terminal() {
		t.Fatalf("task with exhausted attempts should be terminal: %+v", got)
	}
	if _, err := store.Claim(ctx, "c1"); !IsTaskError(err, CodeTaskExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	if _, err := store.Claim(ctx, "missing"); !IsTaskError(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreTerminalFailureExhaustsRetries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Task{ID: "x", Tool: "create_solana_token", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "x"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "x", "INVALID_ARGUMENT", "symbol is required", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, _ := store.Get(ctx, "x")
	if got.Attempts != 3 || !got.Terminal() {
		t.Fatalf("terminal failure should exhaust attempts: %+v", got)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	args := map[string]any{"symbol": "WIF"}
	if err := store.Create(ctx, &Task{ID: "copy", Tool: "analyze_sentiment", Arguments: args, MaxRetries: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	args["symbol"] = "BONK"
	got, _ := store.Get(ctx, "copy")
	got.Arguments["symbol"] = "PEPE"
	again, _ := store.Get(ctx, "copy")
	if again.Arguments["symbol"] != "WIF" {
		t.Fatalf("store leaked caller mutations: %+v", again.Arguments)
	}
}
