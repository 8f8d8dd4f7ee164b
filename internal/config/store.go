package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const taskConfigFile = "config.json"

// TaskStore reads and writes task config documents under the workdir:
// signs/<task>/config.json and monitors/<task>/config.json. Saved
// documents always serialize in the current shape, so a load-save cycle
// upgrades a file on disk.
type TaskStore struct {
	root string
}

// NewTaskStore returns a store rooted at the given workdir.
func NewTaskStore(root string) *TaskStore {
	return &TaskStore{root: root}
}

// SignPath returns the config file path of a sign task.
func (s *TaskStore) SignPath(name string) string {
	return filepath.Join(s.root, "signs", name, taskConfigFile)
}

// MonitorPath returns the config file path of a monitor task.
func (s *TaskStore) MonitorPath(name string) string {
	return filepath.Join(s.root, "monitors", name, taskConfigFile)
}

// LoadSign loads a sign task, upgrading old shapes. The flag reports
// whether the on-disk document was in a prior shape.
func (s *TaskStore) LoadSign(name string) (*SignConfig, bool, error) {
	raw, err := os.ReadFile(s.SignPath(name))
	if err != nil {
		return nil, false, fmt.Errorf("read sign task %q: %w", name, err)
	}
	cfg, upgraded, err := LoadSignConfig(raw)
	if err != nil {
		return nil, false, fmt.Errorf("sign task %q: %w", name, err)
	}
	return cfg, upgraded, nil
}

// SaveSign writes a sign task in the current shape.
func (s *TaskStore) SaveSign(name string, cfg *SignConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("sign task %q: %w", name, err)
	}
	return s.write(s.SignPath(name), cfg)
}

// LoadMonitor loads a monitor task.
func (s *TaskStore) LoadMonitor(name string) (*MonitorConfig, bool, error) {
	raw, err := os.ReadFile(s.MonitorPath(name))
	if err != nil {
		return nil, false, fmt.Errorf("read monitor task %q: %w", name, err)
	}
	cfg, upgraded, err := LoadMonitorConfig(raw)
	if err != nil {
		return nil, false, fmt.Errorf("monitor task %q: %w", name, err)
	}
	return cfg, upgraded, nil
}

// SaveMonitor writes a monitor task.
func (s *TaskStore) SaveMonitor(name string, cfg *MonitorConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("monitor task %q: %w", name, err)
	}
	return s.write(s.MonitorPath(name), cfg)
}

// ListSigns returns the names of all sign tasks, sorted.
func (s *TaskStore) ListSigns() ([]string, error) {
	return s.list("signs")
}

// ListMonitors returns the names of all monitor tasks, sorted.
func (s *TaskStore) ListMonitors() ([]string, error) {
	return s.list("monitors")
}

func (s *TaskStore) list(kind string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, kind, e.Name(), taskConfigFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *TaskStore) write(path string, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
