package logger

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesJSONToFileAndAudit(t *testing.T) {
	dir := t.TempDir()
	appLog := filepath.Join(dir, "app.log")
	auditLog := filepath.Join(dir, "audit", "audit.log")

	if err := Init(Config{
		Level:       "debug",
		OutputPaths: []string{appLog},
		Audit:       AuditConfig{Enabled: true, Path: auditLog, MaxSizeMB: 1},
	}); err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Cleanup(func() { _ = Init(Config{OutputPaths: []string{"stderr"}}) })

	Named("scraper").Debug("tally folded", slog.Int("symbols", 3))
	Audit().Info("tool invoked", slog.String("tool", "post_to_twitter"))
	if err := Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}

	entry := readFirstLine(t, appLog)
	if entry["msg"] != "tally folded" || entry["component"] != "scraper" {
		t.Fatalf("unexpected app entry: %v", entry)
	}
	audit := readFirstLine(t, auditLog)
	if audit["tool"] != "post_to_twitter" {
		t.Fatalf("unexpected audit entry: %v", audit)
	}
}

func TestAuditRequiresPath(t *testing.T) {
	if err := Init(Config{Audit: AuditConfig{Enabled: true}}); err == nil {
		t.Fatalf("expected error for empty audit path")
	}
}

func readFirstLine(t *testing.T, path string) map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatalf("%s is empty", path)
	}
	var entry map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return entry
}
