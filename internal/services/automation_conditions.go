package services

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"restorify/internal/models"
)

// Condition is a single predicate over item or trigger state. Logic joins the
// condition with the PREVIOUS entry in the list (default AND).
type Condition struct {
	ColumnID string      `json:"column_id,omitempty"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
	Logic    string      `json:"logic,omitempty"` // AND, OR
}

// ItemSnapshot is the item state a rule evaluates against. It is read once per
// execution so every condition in the list observes the same values.
type ItemSnapshot struct {
	Item   models.BoardItem
	Values map[string]interface{} // column key -> decoded JSON value
}

// evaluateConditions folds the condition list left to right with no operator
// precedence or grouping:
//
//	acc = eval(c[0]); acc = c[i-1].logic == OR ? acc || eval(c[i]) : acc && eval(c[i])
//
// Existing rules rely on exactly this combinator; do not replace it with a
// precedence-aware expression grammar. An empty list evaluates to true. The
// only errors are structural (missing or unknown operator); data-shape
// mismatches evaluate to false.
func evaluateConditions(conds []Condition, snap *ItemSnapshot, tctx TriggerContext) (bool, error) {
	if len(conds) == 0 {
		return true, nil
	}

	acc, err := evaluateCondition(conds[0], snap, tctx)
	if err != nil {
		return false, err
	}
	for i := 1; i < len(conds); i++ {
		result, err := evaluateCondition(conds[i], snap, tctx)
		if err != nil {
			return false, err
		}
		if strings.EqualFold(conds[i-1].Logic, "OR") {
			acc = acc || result
		} else {
			acc = acc && result
		}
	}
	return acc, nil
}

func evaluateCondition(cond Condition, snap *ItemSnapshot, tctx TriggerContext) (bool, error) {
	op := strings.ToLower(strings.TrimSpace(cond.Operator))
	if op == "" {
		return false, fmt.Errorf("condition on column %q is missing an operator", cond.ColumnID)
	}

	// changed_to/changed_from compare against the firing event, not current
	// column state. They only carry meaning for column_changed-style triggers.
	switch op {
	case "changed_to":
		return valuesEqual(tctx.NewValue, cond.Value), nil
	case "changed_from":
		return valuesEqual(tctx.OldValue, cond.Value), nil
	}

	var current interface{}
	var present bool
	if snap != nil {
		current, present = snap.Values[cond.ColumnID]
	}

	switch op {
	case "equals":
		return valuesEqual(current, cond.Value), nil
	case "not_equals":
		return !valuesEqual(current, cond.Value), nil
	case "contains":
		return containsValue(current, cond.Value), nil
	case "not_contains":
		return !containsValue(current, cond.Value), nil
	case "greater_than":
		a, aok := toFloat64(current)
		b, bok := toFloat64(cond.Value)
		return aok && bok && a > b, nil
	case "less_than":
		a, aok := toFloat64(current)
		b, bok := toFloat64(cond.Value)
		return aok && bok && a < b, nil
	case "is_empty":
		return isEmptyValue(current, present), nil
	case "is_not_empty":
		return !isEmptyValue(current, present), nil
	default:
		return false, fmt.Errorf("unknown condition operator: %s", cond.Operator)
	}
}

// valuesEqual is deep value equality with numeric normalization: JSON decoding
// hands back float64 while rule authors may have stored ints, so numbers
// compare by value rather than by Go type.
func valuesEqual(a, b interface{}) bool {
	if fa, aok := toFloat64(a); aok {
		if fb, bok := toFloat64(b); bok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// containsValue tests substring match for strings and membership for arrays.
// Any other shape pairing is false, never an error.
func containsValue(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case string:
		n, ok := needle.(string)
		return ok && strings.Contains(h, n)
	case []interface{}:
		for _, el := range h {
			if valuesEqual(el, needle) {
				return true
			}
		}
	}
	return false
}

// isEmptyValue treats null/missing, empty string and empty array as empty.
// Zero and false are real values, not empty.
func isEmptyValue(v interface{}, present bool) bool {
	if !present || v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	}
	return false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
