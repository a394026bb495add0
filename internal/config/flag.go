package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Flag is a boolean that also accepts the loose spellings found in stored
// admin settings: "yes"/"no", "on"/"off", "1"/"0" and quoted booleans.
type Flag bool

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		*f = false
		return nil
	}
	*f = Flag(truthy(node.Value))
	return nil
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "y":
		return true
	default:
		return false
	}
}
