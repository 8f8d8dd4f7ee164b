// Package rules implements the declarative matching rules applied to
// incoming chat messages: who to listen to, what text to match and what
// to send back.
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/QQHoney/tg-signer/internal/peer"
)

// Mode is the closed set of text-matching modes.
type Mode string

const (
	ModeAll      Mode = "all"
	ModeExact    Mode = "exact"
	ModeContains Mode = "contains"
	ModeRegex    Mode = "regex"
)

// Valid reports whether the mode is one of the known variants.
func (m Mode) Valid() bool {
	switch m {
	case ModeAll, ModeExact, ModeContains, ModeRegex:
		return true
	}
	return false
}

// MatchRule is a single declarative rule: a predicate over (chat, sender,
// text) plus the action payload describing what to send on a match.
//
// A rule is immutable after decoding; the sender allow-set is normalized
// eagerly so concurrent evaluation never races on derived state.
type MatchRule struct {
	ChatID              peer.ID   `json:"chat_id"`
	Rule                Mode      `json:"rule"`
	RuleValue           string    `json:"rule_value,omitempty"`
	FromUsers           []peer.ID `json:"from_user_ids,omitempty"`
	DefaultSendText     string    `json:"default_send_text,omitempty"`
	AIReply             bool      `json:"ai_reply,omitempty"`
	AIPrompt            string    `json:"ai_prompt,omitempty"`
	SendTextSearchRegex string    `json:"send_text_search_regex,omitempty"`
	DeleteAfter         *int      `json:"delete_after,omitempty"`
	IgnoreCase          bool      `json:"ignore_case"`
	ForwardToChatID     *peer.ID  `json:"forward_to_chat_id,omitempty"`
	PushViaServerChan   bool      `json:"push_via_server_chan,omitempty"`
	ServerChanSendKey   string    `json:"server_chan_send_key,omitempty"`

	senders *SenderSet
}

// UnmarshalJSON decodes a rule with its documented defaults (rule "exact",
// ignore_case true) and precomputes the normalized sender allow-set.
func (r *MatchRule) UnmarshalJSON(data []byte) error {
	type plain MatchRule
	aux := plain{Rule: ModeExact, IgnoreCase: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = MatchRule(aux)
	r.senders = NewSenderSet(r.FromUsers)
	return nil
}

// Validate checks the structural invariants of the rule.
func (r *MatchRule) Validate() error {
	if r.ChatID.IsZero() {
		return fmt.Errorf("%s: chat_id is required", r)
	}
	if !r.Rule.Valid() {
		return fmt.Errorf("%s: unknown rule mode %q", r, r.Rule)
	}
	if r.Rule != ModeAll && r.RuleValue == "" {
		return fmt.Errorf("%s: rule_value is required for rule %q", r, r.Rule)
	}
	return nil
}

// Senders returns the normalized sender allow-set, or nil when the rule
// matches all senders. Rules decoded from JSON carry the precomputed set;
// for rules built as literals the set is recomputed on each call, which is
// pure and therefore safe under concurrent evaluation.
func (r *MatchRule) Senders() *SenderSet {
	if r.senders != nil {
		return r.senders
	}
	return NewSenderSet(r.FromUsers)
}

func (r *MatchRule) String() string {
	return fmt.Sprintf("MatchRule(chat_id=%s, rule=%s, rule_value=%s)", r.ChatID, r.Rule, r.RuleValue)
}

// SenderSet is the normalized, immutable allow-set of senders for a rule.
// Usernames are lowercased with a leading "@" stripped; the aliases "me"
// and "self" collapse into a single sentinel matching the authenticated
// account.
type SenderSet struct {
	ids     map[int64]struct{}
	handles map[string]struct{}
	self    bool
}

// NewSenderSet builds the normalized allow-set. Returns nil for an empty
// list, which means every sender is allowed.
func NewSenderSet(refs []peer.ID) *SenderSet {
	if len(refs) == 0 {
		return nil
	}
	set := &SenderSet{
		ids:     make(map[int64]struct{}),
		handles: make(map[string]struct{}),
	}
	for _, ref := range refs {
		if n, ok := ref.Int64(); ok {
			set.ids[n] = struct{}{}
			continue
		}
		name, _ := ref.Username()
		switch norm := peer.NormalizedHandle(name); norm {
		case "me", "self":
			set.self = true
		default:
			set.handles[norm] = struct{}{}
		}
	}
	return set
}

// Allows reports whether the sender passes the allow-set. A nil sender is
// treated as allowed; see Evaluate for the rationale.
func (s *SenderSet) Allows(sender *Sender) bool {
	if s == nil {
		return true
	}
	if sender == nil {
		return true
	}
	if _, ok := s.ids[sender.ID]; ok {
		return true
	}
	if sender.Username != "" {
		if _, ok := s.handles[peer.NormalizedHandle(sender.Username)]; ok {
			return true
		}
	}
	return s.self && sender.IsSelf
}
