package models

// VariableContext carries trigger-seeded and action-produced values through a
// single workflow run. It lives exactly as long as the run; only the resolved
// execution record outlives it.
type VariableContext map[string]string

// NewVariableContext seeds a context from the workflow's initial variables.
func NewVariableContext(initial map[string]string) VariableContext {
	vars := make(VariableContext, len(initial))
	for k, v := range initial {
		vars[k] = v
	}

	return vars
}

// Get returns the value for key, or the empty string when unset.
func (v VariableContext) Get(key string) string {
	return v[key]
}

// Set stores the value produced for key. Unrelated keys are never touched.
func (v VariableContext) Set(key, value string) {
	if key == "" {
		return
	}

	v[key] = value
}

// Clone returns an independent copy, used to snapshot the context into delay
// continuations and approval records.
func (v VariableContext) Clone() VariableContext {
	clone := make(VariableContext, len(v))
	for k, val := range v {
		clone[k] = val
	}

	return clone
}
