package config

import (
	"os"
	"regexp"
)

// envPattern matches `{{ env.NAME }}` with optional inner whitespace.
// No templating library in the pack fits a substitution this narrow
// (a single named capture, no conditionals or loops), so this stays on
// regexp rather than pulling in a general template engine.
var envPattern = regexp.MustCompile(`\{\{\s*env\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// interpolateEnv replaces every `{{ env.NAME }}` occurrence in s with
// the value of the named environment variable, or the empty string if
// it is unset, per spec.md §6's "resolved once at load" rule.
func interpolateEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		return os.Getenv(sub[1])
	})
}
