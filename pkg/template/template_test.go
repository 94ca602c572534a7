package template

import (
	"testing"

	"github.com/fluxa-io/fluxa/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestResolve_Substitution(t *testing.T) {
	vars := models.VariableContext{
		"email_from":    "alice@example.com",
		"email_subject": "weekly report",
	}

	result := Resolve("From {{email_from}}: {{email_subject}}", vars)
	assert.Equal(t, "From alice@example.com: weekly report", result)
}

func TestResolve_MissingIdentifierIsLeftLiteral(t *testing.T) {
	result := Resolve("Hello {{missing}}", models.VariableContext{})
	assert.Equal(t, "Hello {{missing}}", result)
}

func TestResolve_EmptyValueStillSubstitutes(t *testing.T) {
	vars := models.VariableContext{"name": ""}

	result := Resolve("Hi {{name}}!", vars)
	assert.Equal(t, "Hi !", result, "a present-but-empty variable resolves to empty, not literal")
}

func TestResolve_WhitespaceInsidePlaceholder(t *testing.T) {
	vars := models.VariableContext{"city": "Lisbon"}

	assert.Equal(t, "Lisbon", Resolve("{{ city }}", vars))
}

func TestResolve_DoesNotMutateTemplate(t *testing.T) {
	input := "{{a}} and {{b}}"
	vars := models.VariableContext{"a": "1", "b": "2"}

	_ = Resolve(input, vars)
	assert.Equal(t, "{{a}} and {{b}}", input)

	// Resolving twice against different contexts starts from the template each time.
	assert.Equal(t, "1 and {{b}}", Resolve(input, models.VariableContext{"a": "1"}))
}

func TestResolve_NoPlaceholders(t *testing.T) {
	assert.Equal(t, "plain text", Resolve("plain text", models.VariableContext{"x": "y"}))
}

func TestResolveAll(t *testing.T) {
	vars := models.VariableContext{"user": "bob"}

	resolved := ResolveAll(map[string]string{
		"to":   "{{user}}@example.com",
		"body": "hi {{user}}, re {{thread}}",
	}, vars)

	assert.Equal(t, "bob@example.com", resolved["to"])
	assert.Equal(t, "hi bob, re {{thread}}", resolved["body"])
}
