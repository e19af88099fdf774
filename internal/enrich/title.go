package enrich

import (
	"path"
	"strings"

	"github.com/timelens/timelens/internal/event"
)

// languageByExt maps common file extensions to language names for the
// title-parsing fallback. Structured editor watchers report language
// directly and never reach this table.
var languageByExt = map[string]string{
	".go":   "Go",
	".py":   "Python",
	".js":   "JavaScript",
	".jsx":  "JavaScript",
	".ts":   "TypeScript",
	".tsx":  "TypeScript",
	".rs":   "Rust",
	".java": "Java",
	".kt":   "Kotlin",
	".rb":   "Ruby",
	".c":    "C",
	".h":    "C",
	".cpp":  "C++",
	".cc":   "C++",
	".cs":   "C#",
	".php":  "PHP",
	".sh":   "Shell",
	".md":   "Markdown",
	".yaml": "YAML",
	".yml":  "YAML",
	".json": "JSON",
	".sql":  "SQL",
	".html": "HTML",
	".css":  "CSS",
}

// parseTerminalTitle extracts host and working path from terminal
// titles of the usual "user@host: ~/some/path" shape. Returns nil when
// the title carries neither.
func parseTerminalTitle(title string) *event.Editor {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	var host, workPath string

	if at := strings.Index(title, "@"); at >= 0 {
		rest := title[at+1:]
		end := strings.IndexAny(rest, ": ")
		if end < 0 {
			end = len(rest)
		}
		host = rest[:end]
	}

	// The path is whatever follows the first colon, or failing that
	// the first token that looks like one.
	if colon := strings.Index(title, ":"); colon >= 0 {
		candidate := strings.TrimSpace(title[colon+1:])
		if fields := strings.Fields(candidate); len(fields) > 0 && looksLikePath(fields[0]) {
			workPath = fields[0]
		}
	}
	if workPath == "" {
		for _, f := range strings.Fields(title) {
			if looksLikePath(f) {
				workPath = f
				break
			}
		}
	}

	if host == "" && workPath == "" {
		return nil
	}
	return &event.Editor{Project: host, File: workPath}
}

// parseIDETitle extracts project and file hints from JetBrains-style
// titles: "project – path/to/file.go [extra]". Returns nil when the
// title has no recognizable structure.
func parseIDETitle(title string) *event.Editor {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil
	}

	segments := splitTitle(title)
	switch len(segments) {
	case 0:
		return nil
	case 1:
		return &event.Editor{Project: segments[0]}
	}

	ed := &event.Editor{Project: segments[0]}
	filePart := strings.Fields(segments[1])
	if len(filePart) > 0 {
		ed.File = filePart[0]
		ed.Language = languageByExt[strings.ToLower(path.Ext(ed.File))]
	}
	return ed
}

// splitTitle splits on the dash separators IDEs and terminals use,
// trimming empty segments.
func splitTitle(title string) []string {
	parts := []string{title}
	for _, sep := range []string{" – ", " — ", " - "} {
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}

	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func looksLikePath(s string) bool {
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~")
}
