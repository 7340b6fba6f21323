// Package screen classifies statements and scripts that are likely to mutate or delete data.
//
// The screen is advisory. It never blocks a submission or an execution; callers decide
// whether to surface the warnings to the requester or approver.
package screen

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/querygate/pkg/models"
)

// MaxWarnings caps the number of warnings reported for one input.
const MaxWarnings = 5

// Result is the outcome of screening one submission.
type Result struct {
	IsDestructive bool     `json:"is_destructive"`
	Warnings      []string `json:"warnings"`
}

type matcher struct {
	pattern *regexp.Regexp
	label   string
}

func (m matcher) warn(match string) string {
	return fmt.Sprintf("%s detected: %s", m.label, strings.Join(strings.Fields(match), " "))
}

func compile(label, expr string) matcher {
	return matcher{pattern: regexp.MustCompile(expr), label: label}
}

var relationalMatchers = []matcher{
	compile("DROP statement", `(?i)\bDROP\s+(TABLE|DATABASE|SCHEMA|INDEX|VIEW|FUNCTION|TRIGGER|SEQUENCE|TYPE|EXTENSION|MATERIALIZED\s+VIEW)\b`),
	compile("TRUNCATE statement", `(?i)\bTRUNCATE\s+(TABLE\s+)?\w+`),
	compile("DELETE statement", `(?i)\bDELETE\s+FROM\b`),
	compile("ALTER statement", `(?i)\bALTER\s+(TABLE|DATABASE|SCHEMA|INDEX|VIEW|FUNCTION|SEQUENCE|TYPE|ROLE|USER)\b`),
	compile("UPDATE statement", `(?is)\bUPDATE\s+\S+\s+SET\b`),
	compile("INSERT statement", `(?i)\bINSERT\s+INTO\b`),
	compile("CREATE OR REPLACE statement", `(?i)\bCREATE\s+OR\s+REPLACE\b`),
	compile("privilege change", `(?i)\b(GRANT|REVOKE)\s+\w+`),
}

var documentMatchers = []matcher{
	compile("collection drop", `\.(drop|dropDatabase)\s*\(`),
	compile("document deletion", `\.(deleteOne|deleteMany|remove|findOneAndDelete)\s*\(`),
	compile("document update", `\.(updateOne|updateMany|replaceOne|findOneAndUpdate|findOneAndReplace)\s*\(`),
	compile("document insertion", `\.(insert|insertOne|insertMany)\s*\(`),
	compile("bulk write", `\.bulkWrite\s*\(`),
	compile("collection rename", `\.renameCollection\s*\(`),
	compile("index change", `\.(createIndex|dropIndex|dropIndexes)\s*\(`),
	compile("update operator", `\$(set|unset|push|pull|inc|rename|addToSet|pop)\b`),
}

var scriptMatchers = []matcher{
	compile("DROP in script", `(?i)\bDROP\s+(TABLE|DATABASE|SCHEMA|INDEX|VIEW)\b`),
	compile("TRUNCATE in script", `(?i)\bTRUNCATE\s+(TABLE\s+)?\w+`),
	compile("DELETE in script", `(?i)\bDELETE\s+FROM\b`),
	compile("UPDATE in script", `(?is)\bUPDATE\s+\S+\s+SET\b`),
	compile("ALTER in script", `(?i)\bALTER\s+(TABLE|DATABASE|SCHEMA)\b`),
	compile("INSERT in script", `(?i)\bINSERT\s+INTO\b`),
	compile("collection drop in script", `\.(drop|dropDatabase)\s*\(`),
	compile("document deletion in script", `\.(deleteOne|deleteMany|remove|findOneAndDelete)\s*\(`),
	compile("document update in script", `\.(updateOne|updateMany|replaceOne|findOneAndUpdate)\s*\(`),
	compile("document insertion in script", `\.(insertOne|insertMany)\s*\(`),
	compile("update operator in script", `\$(set|unset|push|pull|inc|rename)\b`),
	compile("mutating call in script", "(?i)\\.(exec|query)\\s*\\(\\s*['\"`]\\s*(DELETE|UPDATE|INSERT|DROP|TRUNCATE|ALTER)\\b"),
	compile("process control", `\b(child_process|process\.exit)\b`),
	compile("filesystem access", `\b(require\s*\(\s*['"]fs['"]\s*\)|fs\.\w+)`),
	compile("dynamic evaluation", `\b(eval|Function)\s*\(`),
}

// Screen classifies content for the given target and submission kind. Script
// submissions are always matched against the script token list regardless of
// the target kind.
func Screen(content string, dbKind models.DatabaseKind, submission models.SubmissionKind) Result {
	result := Result{Warnings: []string{}}

	if strings.TrimSpace(content) == "" {
		return result
	}

	var matchers []matcher

	switch {
	case submission == models.SubmissionKindScript:
		matchers = scriptMatchers
	case dbKind == models.DatabaseKindDocument:
		matchers = documentMatchers
	default:
		matchers = relationalMatchers
	}

	seen := make(map[string]struct{})

	for _, m := range matchers {
		for _, match := range m.pattern.FindAllString(content, -1) {
			warning := m.warn(match)
			if _, dup := seen[warning]; dup {
				continue
			}

			seen[warning] = struct{}{}
			result.Warnings = append(result.Warnings, warning)
		}
	}

	if len(result.Warnings) > MaxWarnings {
		result.Warnings = result.Warnings[:MaxWarnings]
	}

	result.IsDestructive = len(result.Warnings) > 0

	return result
}
