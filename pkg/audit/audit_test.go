package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger(t *testing.T) *Logger {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	l, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

// steppingClock returns a clock that advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func TestLogAndQuery(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	err := l.Log(ctx, "analytics", "Show me revenue", "## Revenue Analysis", nil)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, Filter{AgentType: "analytics"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Message != "Show me revenue" || e.Response != "## Revenue Analysis" {
		t.Errorf("entry = %+v", e)
	}
	if e.Metadata != "" {
		t.Errorf("Metadata = %q, want empty", e.Metadata)
	}
	if e.ID == "" {
		t.Error("expected generated ID")
	}
}

func TestLogStructuredMetadata(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	if err := l.Log(ctx, AgentA2A, "hi", "there", map[string]string{"task_id": "t-1"}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, _ := l.Query(ctx, Filter{Limit: 1})
	if len(entries) == 0 {
		t.Fatal("no entries")
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(entries[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if meta["task_id"] != "t-1" {
		t.Errorf("task_id = %q, want t-1", meta["task_id"])
	}
}

func TestLogStringMetadata(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	if err := l.Log(ctx, AgentMCP, "get_clients", "[]", "tool=get_clients"); err != nil {
		t.Fatalf("Log: %v", err)
	}
	entries, _ := l.Query(ctx, Filter{AgentType: AgentMCP})
	if len(entries) != 1 || entries[0].Metadata != "tool=get_clients" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestQueryFilters(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	for _, agentType := range []string{AgentA2A, AgentA2A, AgentMCP, "planning"} {
		if err := l.Log(ctx, agentType, "m", "r", nil); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	entries, _ := l.Query(ctx, Filter{AgentType: AgentA2A})
	if len(entries) != 2 {
		t.Errorf("by agent type: len = %d, want 2", len(entries))
	}

	entries, _ = l.Query(ctx, Filter{AgentType: "planning"})
	if len(entries) != 1 {
		t.Errorf("planning: len = %d, want 1", len(entries))
	}

	entries, _ = l.Query(ctx, Filter{Limit: 3})
	if len(entries) != 3 {
		t.Errorf("by limit: len = %d, want 3", len(entries))
	}
}

func TestQueryTimeRange(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	if err := l.Log(ctx, AgentA2A, "", "", nil); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, _ := l.Query(ctx, Filter{Since: before})
	if len(entries) != 1 {
		t.Errorf("since: len = %d, want 1", len(entries))
	}

	entries, _ = l.Query(ctx, Filter{Until: before})
	if len(entries) != 0 {
		t.Errorf("before event: len = %d, want 0", len(entries))
	}
}

func TestQueryOrdering(t *testing.T) {
	l := testLogger(t)
	l.now = steppingClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, msg := range []string{"first", "second", "third"} {
		if err := l.Log(ctx, AgentA2A, msg, "", nil); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	entries, err := l.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}
	if entries[0].Message != "third" {
		t.Errorf("entries[0].Message = %q, want %q (DESC order)", entries[0].Message, "third")
	}
	if entries[2].Message != "first" {
		t.Errorf("entries[2].Message = %q, want %q", entries[2].Message, "first")
	}
}

func TestAutoMigrateIdempotent(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	if _, err := New(db); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(db); err != nil {
		t.Fatalf("second New: %v", err)
	}
}

func TestQueryNoLimit(t *testing.T) {
	l := testLogger(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := l.Log(ctx, AgentMCP, fmt.Sprintf("call-%d", i), "", nil); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	entries, err := l.Query(ctx, Filter{Limit: 0})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("len = %d, want 5", len(entries))
	}
}

func TestLogClosedDatabaseFails(t *testing.T) {
	l := testLogger(t)
	sqlDB, _ := l.db.DB()
	sqlDB.Close()

	if err := l.Log(context.Background(), AgentA2A, "m", "r", nil); err == nil {
		t.Error("expected error writing to a closed database")
	}
}
