// Package template expands {{identifier}} placeholders in action parameters
// against a run's variable context.
package template

import (
	"regexp"
	"strings"

	"github.com/fluxa-io/fluxa/pkg/models"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Resolve replaces every {{identifier}} occurrence with the context's current
// value. Identifiers absent from the context are left as literal text, not
// treated as errors. The input template is never mutated; only the returned
// string reflects the substitution.
func Resolve(input string, vars models.VariableContext) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]

		if value, ok := vars[name]; ok {
			return value
		}

		return match
	})
}

// ResolveAll resolves every value of a string map, used for action payloads
// with several templated parameters.
func ResolveAll(params map[string]string, vars models.VariableContext) map[string]string {
	resolved := make(map[string]string, len(params))
	for key, value := range params {
		resolved[key] = Resolve(value, vars)
	}

	return resolved
}
