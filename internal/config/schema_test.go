package config

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/QQHoney/tg-signer/internal/peer"
)

func TestLoadSignConfigV1Upgrades(t *testing.T) {
	raw := []byte(`{
		"chat_id": 10086,
		"sign_text": "签到",
		"sign_at": "06:00:00",
		"random_seconds": 30
	}`)

	cfg, upgraded, err := LoadSignConfig(raw)
	if err != nil {
		t.Fatalf("LoadSignConfig: %v", err)
	}
	if !upgraded {
		t.Error("v1 record must report upgraded = true")
	}
	if len(cfg.Chats) != 1 {
		t.Fatalf("chats len = %d, want 1", len(cfg.Chats))
	}

	chat := cfg.Chats[0]
	if !chat.ChatID.Equal(peer.Num(10086)) {
		t.Errorf("chat_id = %v, want 10086", chat.ChatID)
	}
	if chat.SignText != "签到" {
		t.Errorf("sign_text = %q", chat.SignText)
	}
	if chat.DeleteAfter != nil {
		t.Error("delete_after must stay absent after migration")
	}
	if cfg.SignAt != "06:00:00" {
		t.Errorf("sign_at = %q", cfg.SignAt)
	}
	if cfg.RandomSeconds != 30 {
		t.Errorf("random_seconds = %d", cfg.RandomSeconds)
	}
	if cfg.SignInterval != defaultSignInterval {
		t.Errorf("sign_interval = %d, want default %d", cfg.SignInterval, defaultSignInterval)
	}
}

func TestLoadSignConfigV2Direct(t *testing.T) {
	raw := []byte(`{
		"chats": [
			{"chat_id": 1, "sign_text": "gm", "delete_after": 60},
			{"chat_id": "daily_channel", "sign_text": "done", "text_of_btn_to_click": "Check in"}
		],
		"sign_at": "0 6 * * *",
		"random_seconds": 120,
		"sign_interval": 5
	}`)

	cfg, upgraded, err := LoadSignConfig(raw)
	if err != nil {
		t.Fatalf("LoadSignConfig: %v", err)
	}
	if upgraded {
		t.Error("v2 record must report upgraded = false")
	}
	if got := *cfg.Chats[0].DeleteAfter; got != 60 {
		t.Errorf("delete_after = %d, want 60", got)
	}
	if !cfg.Chats[1].ChatID.Equal(peer.Handle("daily_channel")) {
		t.Errorf("chat_id = %v, want handle daily_channel", cfg.Chats[1].ChatID)
	}
	if !cfg.Chats[1].NeedsResponse() {
		t.Error("chat with a button to click must need a response")
	}
	if cfg.Chats[0].NeedsResponse() {
		t.Error("plain chat must not need a response")
	}
	if cfg.SignInterval != 5 {
		t.Errorf("sign_interval = %d, want 5", cfg.SignInterval)
	}
}

func TestSignConfigRoundTrip(t *testing.T) {
	raw := []byte(`{
		"chats": [{"chat_id": 42, "sign_text": "hello"}],
		"sign_at": "08:30",
		"random_seconds": 0,
		"sign_interval": 2
	}`)

	cfg, _, err := LoadSignConfig(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, upgraded, err := LoadSignConfig(data)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if upgraded {
		t.Error("saved document must load as current")
	}
	if !reflect.DeepEqual(cfg, back) {
		t.Errorf("round trip changed the document: %+v != %+v", cfg, back)
	}
}

func TestSignIntervalDefaultOnV2(t *testing.T) {
	raw := []byte(`{
		"chats": [{"chat_id": 42, "sign_text": "hello"}],
		"sign_at": "08:30",
		"random_seconds": 0
	}`)

	cfg, _, err := LoadSignConfig(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignInterval != defaultSignInterval {
		t.Errorf("sign_interval = %d, want default %d", cfg.SignInterval, defaultSignInterval)
	}
}

func TestSchemaMismatch(t *testing.T) {
	_, _, err := LoadSignConfig([]byte(`{"unrelated": true}`))
	var mismatch *SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
	if !reflect.DeepEqual(mismatch.Attempted, []int{2, 1}) {
		t.Errorf("attempted versions = %v, want [2 1] (current first)", mismatch.Attempted)
	}
}

func TestCurrentVersionWinsOnAmbiguousRecord(t *testing.T) {
	// Record carries both the v2 chats list and the v1 inline fields;
	// current-version-first priority must resolve it as v2 without
	// upgrading.
	raw := []byte(`{
		"chats": [{"chat_id": 7, "sign_text": "gm"}],
		"chat_id": 999,
		"sign_text": "old style",
		"sign_at": "07:00",
		"random_seconds": 1
	}`)

	cfg, upgraded, err := LoadSignConfig(raw)
	if err != nil {
		t.Fatalf("LoadSignConfig: %v", err)
	}
	if upgraded {
		t.Error("ambiguous record must resolve as current, not upgrade")
	}
	if !cfg.Chats[0].ChatID.Equal(peer.Num(7)) {
		t.Errorf("resolved chat = %v, want the v2 chats entry", cfg.Chats[0].ChatID)
	}
}

func TestSignConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing chats", `{"sign_at": "06:00", "random_seconds": 0}`},
		{"missing sign_at", `{"chats": [{"chat_id": 1, "sign_text": "x"}], "random_seconds": 0}`},
		{"negative random_seconds", `{"chats": [{"chat_id": 1, "sign_text": "x"}], "sign_at": "06:00", "random_seconds": -1}`},
		{"chat without text", `{"chats": [{"chat_id": 1}], "sign_at": "06:00", "random_seconds": 0}`},
	}

	for _, tt := range tests {
		if _, _, err := LoadSignConfig([]byte(tt.raw)); err == nil {
			t.Errorf("%s: expected load failure", tt.name)
		}
	}
}

func TestLoadMonitorConfig(t *testing.T) {
	raw := []byte(`{
		"match_cfgs": [
			{"chat_id": 100, "rule": "contains", "rule_value": "red packet"},
			{"chat_id": 100, "rule": "all", "from_user_ids": ["me"]},
			{"chat_id": "alerts", "rule": "regex", "rule_value": "code:(\\d+)", "send_text_search_regex": "code:(\\d+)"}
		]
	}`)

	cfg, upgraded, err := LoadMonitorConfig(raw)
	if err != nil {
		t.Fatalf("LoadMonitorConfig: %v", err)
	}
	if upgraded {
		t.Error("monitor config has a single version, upgraded must be false")
	}
	if cfg.RuleSet().Len() != 3 {
		t.Errorf("rule set len = %d, want 3", cfg.RuleSet().Len())
	}

	ids := cfg.RuleSet().WatchedChatIDs()
	if len(ids) != 3 || !ids[0].Equal(peer.Num(100)) || !ids[1].Equal(peer.Num(100)) {
		t.Errorf("watched chat ids = %v, duplicates must be retained in order", ids)
	}
}

func TestLoadMonitorConfigRejectsBadRule(t *testing.T) {
	raw := []byte(`{"match_cfgs": [{"chat_id": 100, "rule": "contains"}]}`)
	if _, _, err := LoadMonitorConfig(raw); err == nil {
		t.Fatal("rule without rule_value must fail validation")
	}
}
