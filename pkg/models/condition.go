package models

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
)

// ConditionOperator is the comparison a conditional action applies.
type ConditionOperator string

const (
	ConditionOperatorEquals   ConditionOperator = "equals"
	ConditionOperatorContains ConditionOperator = "contains"
)

// Condition is a simple `variable <op> literal` expression evaluated against
// the run's variable context.
type Condition struct {
	Variable string            `json:"variable" validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required,oneof=equals contains"`
	Value    string            `json:"value"`
}

var ErrInvalidCondition = errors.New("invalid condition")

func (c *Condition) Validate() error {
	if c.Variable == "" {
		return fmt.Errorf("%w: variable is required", ErrInvalidCondition)
	}

	switch c.Operator {
	case ConditionOperatorEquals, ConditionOperatorContains:
		return nil
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, c.Operator)
	}
}

// Evaluate compiles the condition into an expression over the variable
// context and runs it. A variable absent from the context evaluates as the
// empty string.
func (c *Condition) Evaluate(vars VariableContext) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}

	var source string

	switch c.Operator {
	case ConditionOperatorEquals:
		source = `current == value`
	case ConditionOperatorContains:
		source = `current contains value`
	}

	env := map[string]any{
		"current": vars.Get(c.Variable),
		"value":   c.Value,
	}

	program, err := expr.Compile(source, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidCondition, err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("%w: expression did not yield a boolean", ErrInvalidCondition)
	}

	return matched, nil
}
