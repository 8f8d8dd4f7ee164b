package rules

import (
	"regexp"
	"strings"

	"github.com/QQHoney/tg-signer/internal/peer"
)

// Sender is the identity of a message author as reported by the transport.
type Sender struct {
	ID       int64
	Username string
	IsSelf   bool
}

// Message is the read-only snapshot of an incoming message the evaluator
// operates on. An empty Text means the message carried no text.
type Message struct {
	ChatID peer.ID
	Sender *Sender
	Text   string
}

// Outcome is the result of evaluating a rule against a message.
type Outcome struct {
	Matched  bool
	SendText string
}

// Evaluate applies the rule's predicate to the message and, on a match,
// derives the outgoing text. Stages short-circuit in order: chat, sender,
// text. Evaluation is pure; the only errors are configuration mistakes in
// the rule's patterns.
func Evaluate(rule *MatchRule, msg Message) (Outcome, error) {
	if !rule.ChatID.Equal(msg.ChatID) {
		return Outcome{}, nil
	}
	// An unresolvable sender passes the allow-set. This lets service and
	// anonymous messages through sender filtering; flagged for review but
	// kept as-is.
	if !rule.Senders().Allows(msg.Sender) {
		return Outcome{}, nil
	}

	ok, err := matchText(rule, msg.Text)
	if err != nil || !ok {
		return Outcome{}, err
	}

	text, err := deriveSendText(rule, msg.Text)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Matched: true, SendText: text}, nil
}

func matchText(rule *MatchRule, text string) (bool, error) {
	if rule.Rule == ModeAll {
		return true, nil
	}
	if text == "" {
		return false, nil
	}

	value := rule.RuleValue
	switch rule.Rule {
	case ModeExact:
		if rule.IgnoreCase {
			return strings.EqualFold(value, text), nil
		}
		return value == text, nil
	case ModeContains:
		if rule.IgnoreCase {
			return strings.Contains(strings.ToLower(text), strings.ToLower(value)), nil
		}
		return strings.Contains(text, value), nil
	case ModeRegex:
		if rule.IgnoreCase {
			value = "(?i)" + value
		}
		re, err := regexp.Compile(value)
		if err != nil {
			return false, &InvalidPatternError{Rule: rule.String(), Pattern: rule.RuleValue, Err: err}
		}
		return re.MatchString(text), nil
	}
	// Unknown modes never match.
	return false, nil
}

// deriveSendText picks the outgoing text for a matched rule. The extraction
// pattern, when present, is searched case-sensitively; its first capture
// group overrides the default reply text.
func deriveSendText(rule *MatchRule, text string) (string, error) {
	if rule.SendTextSearchRegex == "" {
		return rule.DefaultSendText, nil
	}
	re, err := regexp.Compile(rule.SendTextSearchRegex)
	if err != nil {
		return "", &InvalidPatternError{Rule: rule.String(), Pattern: rule.SendTextSearchRegex, Err: err}
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return rule.DefaultSendText, nil
	}
	if re.NumSubexp() == 0 {
		return "", &PatternCaptureError{Rule: rule.String(), Pattern: rule.SendTextSearchRegex, Text: text}
	}
	return m[1], nil
}
