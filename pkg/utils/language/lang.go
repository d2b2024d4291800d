// Package language parses user-facing language lists with x/text/language.
package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// ParseList parses a comma-separated list such as "ru, en-US" into canonical BCP 47
// codes, dropping duplicates and keeping the input order.
func ParseList(csv string) ([]string, error) {
	var out []string
	seen := make(map[language.Tag]struct{})
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tag, err := language.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("language %q: %w", part, err)
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag.String())
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no language in %q", csv)
	}
	return out, nil
}
