// Package category classifies events against user-defined hierarchical
// regex rules. The classifier works on an immutable snapshot: rule
// writes elsewhere publish a new snapshot instead of mutating shared
// state under a running request.
package category

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/timelens/timelens/internal/config"
	"github.com/timelens/timelens/internal/event"
)

// Uncategorized is the fallback label for events matching no rule.
const Uncategorized = "Uncategorized"

type compiledRule struct {
	name []string
	re   *regexp.Regexp
}

// Snapshot is an immutable compiled rule set.
type Snapshot struct {
	rules []compiledRule
}

// NewSnapshot compiles a rule list. A rule with an invalid regex is
// logged and skipped; it never fails the snapshot. Matching is always
// case-insensitive regardless of how the pattern is written.
func NewSnapshot(rules []config.CategoryRule, logger zerolog.Logger) *Snapshot {
	log := logger.With().Str("component", "category").Logger()

	s := &Snapshot{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Regex)
		if err != nil {
			log.Warn().Err(err).Str("rule", strings.Join(r.Name, " > ")).Str("regex", r.Regex).
				Msg("Invalid category regex, skipping rule")
			continue
		}
		s.rules = append(s.rules, compiledRule{name: r.Name, re: re})
	}
	return s
}

// Len returns the number of usable rules in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.rules)
}

// Classify returns the single deepest matching category for the event:
// among all rules whose regex matches, the one with the longest
// hierarchical name wins, ties broken by rule list order. An event
// matching nothing is Uncategorized.
func (s *Snapshot) Classify(e *event.Enriched) []string {
	text := SearchText(e)

	var best []string
	for _, r := range s.rules {
		if len(r.name) <= len(best) {
			continue
		}
		if r.re.MatchString(text) {
			best = r.name
		}
	}
	if best == nil {
		return []string{Uncategorized}
	}
	return best
}

// Matches returns every matching category in rule list order,
// preserving full hierarchy strings. Returns nil when nothing matches;
// callers decide whether to substitute the Uncategorized fallback.
func (s *Snapshot) Matches(e *event.Enriched) [][]string {
	text := SearchText(e)

	var out [][]string
	for _, r := range s.rules {
		if r.re.MatchString(text) {
			out = append(out, r.name)
		}
	}
	return out
}

// SearchText synthesizes the lowercase haystack the rules match
// against from every relevant field present on the event. Absent
// fields contribute nothing.
func SearchText(e *event.Enriched) string {
	parts := []string{e.App, e.Title}
	if e.Browser != nil {
		parts = append(parts, e.Browser.URL, e.Browser.Domain, e.Browser.Title)
	}
	if e.Editor != nil {
		parts = append(parts, e.Editor.File, e.Editor.Project, e.Editor.Language)
	}

	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}
