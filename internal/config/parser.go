// Package config resolves, parses, validates, and defaults scout configuration.
package config

import "strings"

// Parse reads configuration content as JSONC. Empty content yields base
// (defaults) unchanged, validated.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	return parseJSONC(content, base)
}
