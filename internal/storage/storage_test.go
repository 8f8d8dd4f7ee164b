package storage

import (
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSignRecords(t *testing.T) {
	s := newTestStorage(t)

	if _, found, err := s.LastSignTime("daily", "100"); err != nil || found {
		t.Fatalf("LastSignTime on empty db = found %v, err %v", found, err)
	}

	first := time.Date(2026, 8, 29, 6, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)
	for _, at := range []time.Time{first, second} {
		rec := &SignRecord{Task: "daily", ChatID: "100", MessageID: 7, Status: "ok", SignedAt: at}
		if err := s.SaveSignRecord(rec); err != nil {
			t.Fatalf("SaveSignRecord: %v", err)
		}
		if rec.ID == 0 {
			t.Error("SaveSignRecord must backfill the row id")
		}
	}
	// Failures don't count as the last sign-in.
	err := s.SaveSignRecord(&SignRecord{Task: "daily", ChatID: "100", Status: "error", SignedAt: second.Add(time.Hour)})
	if err != nil {
		t.Fatalf("SaveSignRecord: %v", err)
	}

	got, found, err := s.LastSignTime("daily", "100")
	if err != nil {
		t.Fatalf("LastSignTime: %v", err)
	}
	if !found || !got.Equal(second) {
		t.Errorf("LastSignTime = %v, %v; want %v, true", got, found, second)
	}

	if _, found, _ := s.LastSignTime("daily", "200"); found {
		t.Error("LastSignTime must be scoped per chat")
	}
}

func TestMonitorEvents(t *testing.T) {
	s := newTestStorage(t)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ev := &MonitorEvent{
			Task:      "watch",
			ChatID:    "100",
			RuleIndex: i,
			Sender:    "alice",
			Matched:   "your code:4821",
			SentText:  "4821",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.SaveMonitorEvent(ev); err != nil {
			t.Fatalf("SaveMonitorEvent: %v", err)
		}
	}

	events, err := s.RecentEvents(2)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("RecentEvents len = %d, want 2", len(events))
	}
	if events[0].RuleIndex != 2 {
		t.Errorf("events must come most recent first, got rule index %d", events[0].RuleIndex)
	}
}
