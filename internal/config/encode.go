package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// EncodeYAML renders c in the form Load accepts. Durations are written in a
// single unit, e.g. 60s or 2m.
func EncodeYAML(c Config) ([]byte, error) {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if oracle, ok := doc["oracle"].(map[string]any); ok && c.Oracle.Timeout > 0 {
		oracle["timeout"] = formatDuration(c.Oracle.Timeout)
	}
	return yaml.Marshal(doc)
}

func formatDuration(d time.Duration) string {
	switch {
	case d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	case d%time.Second == 0:
		return fmt.Sprintf("%ds", d/time.Second)
	default:
		return fmt.Sprintf("%dms", d/time.Millisecond)
	}
}
