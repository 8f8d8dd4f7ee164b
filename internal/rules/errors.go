package rules

import "fmt"

// InvalidPatternError reports a rule whose regex pattern does not compile.
// Patterns are compiled at evaluation time, not when the config is loaded,
// so this surfaces on the first message that reaches the rule.
type InvalidPatternError struct {
	Rule    string
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("%s: invalid pattern %q: %v", e.Rule, e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

// PatternCaptureError reports an extraction pattern that matched the
// message but defines no capture group, so there is nothing to extract.
// This is a rule-authoring mistake and is raised instead of silently
// falling back to the default reply.
type PatternCaptureError struct {
	Rule    string
	Pattern string
	Text    string
}

func (e *PatternCaptureError) Error() string {
	return fmt.Sprintf("%s: pattern %q matched text %q but has no capture group, check the regex", e.Rule, e.Pattern, e.Text)
}
