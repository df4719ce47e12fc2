package postgres

import "strings"

// DefaultDenyPatterns are the SQL shapes blocked by default. Matching is
// case-insensitive and whitespace-insensitive: `drop    database` and
// `DROP DATABASE` both hit.
var DefaultDenyPatterns = []string{
	"DROP DATABASE",
	"DROP SCHEMA",
	"TRUNCATE TABLE",
	"DELETE FROM",
	"ALTER SYSTEM",
	"CREATE ROLE",
	"DROP ROLE",
}

// Inspector matches SQL statements against a deny-list of substring
// patterns. It is immutable after construction and safe for concurrent use.
type Inspector struct {
	patterns []string
}

// NewInspector builds an inspector from the given patterns; nil or empty
// falls back to DefaultDenyPatterns. Patterns are normalized once.
func NewInspector(patterns []string) *Inspector {
	if len(patterns) == 0 {
		patterns = DefaultDenyPatterns
	}
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if n := normalizeSQL(p); n != "" {
			normalized = append(normalized, n)
		}
	}
	return &Inspector{patterns: normalized}
}

// Match reports whether sql hits the deny-list, returning the matched
// pattern for the audit record.
func (i *Inspector) Match(sql string) (string, bool) {
	normalized := normalizeSQL(sql)
	for _, p := range i.patterns {
		if strings.Contains(normalized, p) {
			return p, true
		}
	}
	return "", false
}

// normalizeSQL uppercases and collapses runs of whitespace to single
// spaces so pattern matching ignores formatting.
func normalizeSQL(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
