package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jvs-project/rcopy/pkg/color"
	"github.com/jvs-project/rcopy/pkg/config"
)

// suggestKeys returns configuration keys close to key: prefix matches
// first, then substring matches.
func suggestKeys(key string) []string {
	key = strings.ToLower(key)
	var matches []string
	for _, k := range config.Keys {
		if strings.HasPrefix(k, key) {
			matches = append(matches, k)
		}
	}
	if len(matches) == 0 {
		for _, k := range config.Keys {
			if strings.Contains(k, key) || strings.Contains(key, k) {
				matches = append(matches, k)
			}
		}
	}
	return matches
}

// keyError adds a hint to an unknown-key error.
func keyError(key string, err error) error {
	if slices.Contains(config.Keys, key) {
		return err
	}
	matches := suggestKeys(key)
	if len(matches) == 0 {
		return fmt.Errorf("%w\n%s", err, color.Dim("  Run 'rcopy config --help' to list available keys."))
	}
	hint := "Did you mean"
	if len(matches) > 1 {
		hint += " one of"
	}
	return fmt.Errorf("%w\n%s", err, color.Dim(fmt.Sprintf("  %s: %s?", hint, strings.Join(matches, ", "))))
}
