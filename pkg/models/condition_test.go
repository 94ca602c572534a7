package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCondition_Equals(t *testing.T) {
	vars := VariableContext{"sentiment": "negative"}

	condition := Condition{Variable: "sentiment", Operator: ConditionOperatorEquals, Value: "negative"}

	matched, err := condition.Evaluate(vars)
	require.NoError(t, err)
	assert.True(t, matched)

	condition.Value = "positive"

	matched, err = condition.Evaluate(vars)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestCondition_Contains(t *testing.T) {
	vars := VariableContext{"email_subject": "URGENT: server down"}

	condition := Condition{Variable: "email_subject", Operator: ConditionOperatorContains, Value: "URGENT"}

	matched, err := condition.Evaluate(vars)
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestCondition_MissingVariableIsEmptyString(t *testing.T) {
	condition := Condition{Variable: "absent", Operator: ConditionOperatorEquals, Value: ""}

	matched, err := condition.Evaluate(VariableContext{})
	require.NoError(t, err)
	assert.True(t, matched, "unset variables compare as empty string")
}

func TestCondition_UnknownOperator(t *testing.T) {
	condition := Condition{Variable: "x", Operator: "matches", Value: "y"}

	_, err := condition.Evaluate(VariableContext{"x": "y"})
	assert.ErrorIs(t, err, ErrInvalidCondition)
}
