package rules

import "github.com/QQHoney/tg-signer/internal/peer"

// Set is an ordered collection of rules sharing one monitoring scope. It
// performs no matching itself; the session iterates it, evaluating each
// rule per incoming message.
type Set struct {
	Rules []*MatchRule
}

// NewSet wraps the given rules, preserving order.
func NewSet(rules []*MatchRule) *Set {
	return &Set{Rules: rules}
}

// WatchedChatIDs returns the chat identifier of every rule in rule order.
// Duplicates are retained: callers that want a distinct set must
// deduplicate themselves.
func (s *Set) WatchedChatIDs() []peer.ID {
	ids := make([]peer.ID, 0, len(s.Rules))
	for _, r := range s.Rules {
		ids = append(ids, r.ChatID)
	}
	return ids
}

// Watches reports whether any rule targets the given chat.
func (s *Set) Watches(chatID peer.ID) bool {
	for _, r := range s.Rules {
		if r.ChatID.Equal(chatID) {
			return true
		}
	}
	return false
}

// Len returns the number of rules.
func (s *Set) Len() int {
	return len(s.Rules)
}
