package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/QQHoney/tg-signer/internal/peer"
	"github.com/QQHoney/tg-signer/internal/rules"
)

func TestTaskStoreSignRoundTrip(t *testing.T) {
	store := NewTaskStore(t.TempDir())

	cfg := &SignConfig{
		Chats:         []SignChat{{ChatID: peer.Num(1), SignText: "gm"}},
		SignAt:        "06:00",
		RandomSeconds: 10,
		SignInterval:  1,
	}
	if err := store.SaveSign("daily", cfg); err != nil {
		t.Fatalf("SaveSign: %v", err)
	}

	back, upgraded, err := store.LoadSign("daily")
	if err != nil {
		t.Fatalf("LoadSign: %v", err)
	}
	if upgraded {
		t.Error("freshly saved task must load as current")
	}
	if !reflect.DeepEqual(cfg, back) {
		t.Errorf("round trip changed the task: %+v != %+v", cfg, back)
	}
}

func TestTaskStoreUpgradesOldFile(t *testing.T) {
	dir := t.TempDir()
	store := NewTaskStore(dir)

	path := store.SignPath("legacy")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	v1 := `{"chat_id": 5, "sign_text": "in", "sign_at": "07:00", "random_seconds": 0}`
	if err := os.WriteFile(path, []byte(v1), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, upgraded, err := store.LoadSign("legacy")
	if err != nil {
		t.Fatalf("LoadSign: %v", err)
	}
	if !upgraded {
		t.Error("v1 file must report upgraded")
	}

	// Saving writes the current shape; the next load no longer upgrades.
	if err := store.SaveSign("legacy", cfg); err != nil {
		t.Fatalf("SaveSign: %v", err)
	}
	if _, upgraded, _ = store.LoadSign("legacy"); upgraded {
		t.Error("saved task must be in the current shape")
	}
}

func TestTaskStoreMonitorAndListing(t *testing.T) {
	store := NewTaskStore(t.TempDir())

	cfg := &MonitorConfig{MatchCfgs: []*rules.MatchRule{
		{ChatID: peer.Num(9), Rule: rules.ModeAll},
	}}
	if err := store.SaveMonitor("watch", cfg); err != nil {
		t.Fatalf("SaveMonitor: %v", err)
	}
	if err := store.SaveSign("a", &SignConfig{
		Chats: []SignChat{{ChatID: peer.Num(1), SignText: "x"}}, SignAt: "06:00",
	}); err != nil {
		t.Fatalf("SaveSign: %v", err)
	}

	monitors, err := store.ListMonitors()
	if err != nil {
		t.Fatalf("ListMonitors: %v", err)
	}
	if len(monitors) != 1 || monitors[0] != "watch" {
		t.Errorf("monitors = %v", monitors)
	}

	signs, err := store.ListSigns()
	if err != nil {
		t.Fatalf("ListSigns: %v", err)
	}
	if len(signs) != 1 || signs[0] != "a" {
		t.Errorf("signs = %v", signs)
	}

	back, _, err := store.LoadMonitor("watch")
	if err != nil {
		t.Fatalf("LoadMonitor: %v", err)
	}
	if back.RuleSet().Len() != 1 {
		t.Errorf("rule set len = %d, want 1", back.RuleSet().Len())
	}
}
