package peer

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw     string
		want    ID
		wantErr bool
	}{
		{`123456`, Num(123456), false},
		{`-1001234567890`, Num(-1001234567890), false},
		{`"some_channel"`, Handle("some_channel"), false},
		{`"@someone"`, Handle("@someone"), false},
		{`""`, ID{}, true},
		{`12.5`, ID{}, true},
		{`[1]`, ID{}, true},
	}

	for _, tt := range tests {
		var id ID
		err := json.Unmarshal([]byte(tt.raw), &id)
		if (err != nil) != tt.wantErr {
			t.Errorf("unmarshal %s: err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if err == nil && !id.Equal(tt.want) {
			t.Errorf("unmarshal %s = %v, want %v", tt.raw, id, tt.want)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	for _, id := range []ID{Num(42), Handle("the_chat")} {
		data, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal %v: %v", id, err)
		}
		var back ID
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if !back.Equal(id) {
			t.Errorf("round trip %v -> %s -> %v", id, data, back)
		}
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b ID
		want bool
	}{
		{Num(5), Num(5), true},
		{Num(5), Num(6), false},
		{Handle("abc"), Handle("abc"), true},
		{Handle("abc"), Handle("ABC"), false}, // native form, no normalization
		{Num(5), Handle("5"), false},
		{ID{}, ID{}, true},
	}

	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("Equal(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNormalizedHandle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"@SomeUser", "someuser"},
		{"someuser", "someuser"},
		{"@ALLCAPS", "allcaps"},
	}

	for _, tt := range tests {
		if got := NormalizedHandle(tt.in); got != tt.want {
			t.Errorf("NormalizedHandle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
