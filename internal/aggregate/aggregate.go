// Package aggregate rolls enriched events into ranked report rows,
// grouped by one key or by an ordered list of keys forming a tree.
package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/timelens/timelens/internal/category"
	"github.com/timelens/timelens/internal/event"
)

// Key is one grouping dimension.
type Key string

const (
	KeyApp         Key = "app"
	KeyTitle       Key = "title"
	KeyDomain      Key = "domain"
	KeyProject     Key = "project"
	KeyLanguage    Key = "language"
	KeyHour        Key = "hour"
	KeyCategory    Key = "category"
	KeyTopCategory Key = "top_category"
)

// ParseKey validates a grouping key name.
func ParseKey(s string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KeyApp, KeyTitle, KeyDomain, KeyProject, KeyLanguage, KeyHour, KeyCategory, KeyTopCategory:
		return k, nil
	}
	return "", fmt.Errorf("unknown group key: %q", s)
}

// ParseKeys parses a comma-separated key list.
func ParseKeys(s string) ([]Key, error) {
	var keys []Key
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		keys = []Key{KeyApp}
	}
	return keys, nil
}

// Row is one reportable aggregate.
type Row struct {
	// Hierarchy is the full key path for this row, one element per
	// grouping level.
	Hierarchy  []string  `json:"group_hierarchy"`
	Seconds    float64   `json:"duration_seconds"`
	EventCount int       `json:"event_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`

	// Percentage is computed against the calendar union total, not
	// the group's own subtree, so category rows may intentionally sum
	// past 100%.
	Percentage float64 `json:"percentage"`

	MeetingOverlapSeconds float64 `json:"meeting_overlap_seconds"`
	CalendarOnly          bool    `json:"calendar_only"`

	Domains    []string `json:"domains,omitempty"`
	Projects   []string `json:"projects,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

// Group reduces events into rows keyed by the ordered key list. With
// more than one key the result is the flattened leaf level of the
// grouping tree; every row carries its full key path. An event grouped
// by category lands in every matched category with its full duration;
// duplication there is intended reporting semantics. unionSeconds is
// the percentage denominator.
func Group(events []*event.Enriched, keys []Key, unionSeconds float64) []Row {
	if len(keys) == 0 {
		keys = []Key{KeyApp}
	}

	rows := groupLevel(events, keys, nil, unionSeconds)

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Seconds != rows[j].Seconds {
			return rows[i].Seconds > rows[j].Seconds
		}
		return strings.Join(rows[i].Hierarchy, "\x00") < strings.Join(rows[j].Hierarchy, "\x00")
	})
	return rows
}

func groupLevel(events []*event.Enriched, keys []Key, prefix []string, unionSeconds float64) []Row {
	partitions, order := partition(events, keys[0])

	var rows []Row
	for _, value := range order {
		members := partitions[value]
		path := append(append([]string{}, prefix...), value)

		if len(keys) == 1 {
			rows = append(rows, buildRow(members, path, unionSeconds))
			continue
		}
		rows = append(rows, groupLevel(members, keys[1:], path, unionSeconds)...)
	}
	return rows
}

// partition splits events by their values for one key, preserving
// first-seen order of values. Events without the key's attribute are
// skipped; events with several values (categories) join every
// matching partition.
func partition(events []*event.Enriched, key Key) (map[string][]*event.Enriched, []string) {
	parts := make(map[string][]*event.Enriched)
	var order []string

	for _, e := range events {
		for _, v := range keyValues(e, key) {
			if _, seen := parts[v]; !seen {
				order = append(order, v)
			}
			parts[v] = append(parts[v], e)
		}
	}
	return parts, order
}

func keyValues(e *event.Enriched, key Key) []string {
	switch key {
	case KeyApp:
		if e.App == "" {
			return []string{"unknown"}
		}
		return []string{e.App}
	case KeyTitle:
		if e.Title == "" {
			return []string{"unknown"}
		}
		return []string{e.Title}
	case KeyDomain:
		if e.Browser == nil || e.Browser.Domain == "" {
			return nil
		}
		return []string{e.Browser.Domain}
	case KeyProject:
		if e.Editor == nil || e.Editor.Project == "" {
			return nil
		}
		return []string{e.Editor.Project}
	case KeyLanguage:
		if e.Editor == nil || e.Editor.Language == "" {
			return nil
		}
		return []string{e.Editor.Language}
	case KeyHour:
		return []string{fmt.Sprintf("%02d:00", e.Timestamp.Hour())}
	case KeyCategory:
		if len(e.Categories) == 0 {
			return []string{category.Uncategorized}
		}
		out := make([]string, 0, len(e.Categories))
		for _, c := range e.Categories {
			out = append(out, strings.Join(c, " > "))
		}
		return out
	case KeyTopCategory:
		if len(e.Categories) == 0 {
			return []string{category.Uncategorized}
		}
		var out []string
		seen := make(map[string]struct{})
		for _, c := range e.Categories {
			top := c[0]
			if _, dup := seen[top]; dup {
				continue
			}
			seen[top] = struct{}{}
			out = append(out, top)
		}
		return out
	}
	return nil
}

func buildRow(members []*event.Enriched, path []string, unionSeconds float64) Row {
	row := Row{
		Hierarchy:    path,
		EventCount:   len(members),
		CalendarOnly: true,
	}

	domains := make(map[string]struct{})
	projects := make(map[string]struct{})
	categories := make(map[string]struct{})

	for _, e := range members {
		row.Seconds += e.Duration
		row.MeetingOverlapSeconds += e.MeetingOverlapSeconds()
		if !e.CalendarOnly {
			row.CalendarOnly = false
		}

		start := e.Timestamp
		end := e.Span().End
		if row.FirstSeen.IsZero() || start.Before(row.FirstSeen) {
			row.FirstSeen = start
		}
		if end.After(row.LastSeen) {
			row.LastSeen = end
		}

		if e.Browser != nil && e.Browser.Domain != "" {
			domains[e.Browser.Domain] = struct{}{}
		}
		if e.Editor != nil && e.Editor.Project != "" {
			projects[e.Editor.Project] = struct{}{}
		}
		for _, c := range e.Categories {
			categories[strings.Join(c, " > ")] = struct{}{}
		}
	}

	if unionSeconds > 0 {
		row.Percentage = 100 * row.Seconds / unionSeconds
	}

	row.Domains = sortedKeys(domains)
	row.Projects = sortedKeys(projects)
	row.Categories = sortedKeys(categories)
	return row
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
