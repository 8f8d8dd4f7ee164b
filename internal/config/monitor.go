package config

import (
	"errors"
	"fmt"

	"github.com/QQHoney/tg-signer/internal/rules"
)

// MonitorConfig is the current (v1) monitor task shape: an ordered list of
// match rules.
type MonitorConfig struct {
	MatchCfgs []*rules.MatchRule `json:"match_cfgs"`
}

// Validate checks every rule in order.
func (c *MonitorConfig) Validate() error {
	if c.MatchCfgs == nil {
		return errors.New("monitor config: match_cfgs is required")
	}
	for i, rule := range c.MatchCfgs {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("match_cfgs[%d]: %w", i, err)
		}
	}
	return nil
}

// RuleSet wraps the rules into an ordered set for the monitoring session.
func (c *MonitorConfig) RuleSet() *rules.Set {
	return rules.NewSet(c.MatchCfgs)
}

// MonitorFamily registers the monitor-config shapes. Only one version
// exists so far.
var MonitorFamily = Family{
	Name: "monitor",
	Current: Version{
		Tag: 1,
		New: func() Document { return new(MonitorConfig) },
	},
}

// LoadMonitorConfig loads a raw monitor-config record.
func LoadMonitorConfig(raw []byte) (*MonitorConfig, bool, error) {
	doc, upgraded, err := MonitorFamily.Load(raw)
	if err != nil {
		return nil, false, err
	}
	return doc.(*MonitorConfig), upgraded, nil
}
