// Package peer defines the identifier type shared by sign and monitor
// configs: a Telegram chat or user referenced either by numeric ID or by
// username handle.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ID identifies a chat or user. It is exactly one of a numeric Telegram ID
// or a username handle. The zero value is neither and fails validation.
type ID struct {
	num     int64
	handle  string
	numeric bool
}

// Num returns a numeric identifier.
func Num(id int64) ID {
	return ID{num: id, numeric: true}
}

// Handle returns a username identifier. The handle is kept in its raw form;
// normalization rules are applied per use site.
func Handle(name string) ID {
	return ID{handle: name}
}

// IsZero reports whether the identifier is unset.
func (id ID) IsZero() bool {
	return !id.numeric && id.handle == ""
}

// Int64 returns the numeric form, if this is a numeric identifier.
func (id ID) Int64() (int64, bool) {
	return id.num, id.numeric
}

// Username returns the handle form, if this is a username identifier.
func (id ID) Username() (string, bool) {
	return id.handle, !id.numeric && id.handle != ""
}

// Equal compares two identifiers on their native form: numeric IDs by
// value, handles by exact string. A numeric ID never equals a handle.
func (id ID) Equal(other ID) bool {
	if id.numeric != other.numeric {
		return false
	}
	if id.numeric {
		return id.num == other.num
	}
	return id.handle == other.handle
}

// NormalizedHandle lowercases a handle and strips a leading "@". Used when
// matching sender allow-sets; chat identifiers are never normalized.
func NormalizedHandle(name string) string {
	return strings.ToLower(strings.TrimPrefix(name, "@"))
}

func (id ID) String() string {
	if id.numeric {
		return strconv.FormatInt(id.num, 10)
	}
	return id.handle
}

// MarshalJSON writes the identifier in its native JSON form: a number for
// numeric IDs, a string for handles.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return json.Marshal(id.num)
	}
	return json.Marshal(id.handle)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *ID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = Num(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("peer id must be an integer or a string, got %s", data)
	}
	if s == "" {
		return errors.New("peer id must not be empty")
	}
	*id = Handle(s)
	return nil
}
