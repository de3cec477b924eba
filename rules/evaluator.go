package rules

// EvaluateRules evaluates every rule against input and returns one result per
// rule, in rule order. It never fails: missing fields and type mismatches
// simply do not match.
func EvaluateRules(rules []Rule, input map[string]any) []EvaluationResult {
	results := make([]EvaluationResult, len(rules))
	for i := range rules {
		results[i] = evaluateRule(i, &rules[i], input)
	}
	return results
}

func evaluateRule(index int, rule *Rule, input map[string]any) EvaluationResult {
	result := EvaluationResult{
		Index:  index,
		Field:  rule.Field,
		Passed: true,
	}

	raw, ok := input[rule.Field]
	if !ok {
		return result
	}
	actual, ok := ValueOf(raw)
	if !ok {
		return result
	}

	result.Matched = compare(rule.Operator, actual, rule.Value)
	if result.Matched && rule.Action == ActionDeny {
		result.Passed = false
		result.Reason = rule.Modifier
	}
	return result
}

// compare applies op to the input value and the rule literal
func compare(op Operator, actual, expected Value) bool {
	switch op {
	case OpEqual:
		equal, comparable := valuesEqual(actual, expected)
		return comparable && equal
	case OpNotEqual:
		equal, comparable := valuesEqual(actual, expected)
		return comparable && !equal
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		a, ok := actual.numeric()
		if !ok {
			return false
		}
		e, ok := expected.numeric()
		if !ok {
			return false
		}
		switch op {
		case OpGreater:
			return a > e
		case OpGreaterEqual:
			return a >= e
		case OpLess:
			return a < e
		default:
			return a <= e
		}
	default:
		return false
	}
}

// valuesEqual compares numerically when the literal is a number and the input
// is numeric-like, otherwise requires the same kind. comparable is false on a
// type mismatch.
func valuesEqual(actual, expected Value) (equal, comparable bool) {
	if e, ok := expected.Number(); ok {
		if a, ok := actual.numeric(); ok {
			return a == e, true
		}
	}

	if actual.Kind() != expected.Kind() {
		return false, false
	}

	switch expected.Kind() {
	case KindNumber:
		return actual.num == expected.num, true
	case KindString:
		return actual.str == expected.str, true
	case KindBool:
		return actual.b == expected.b, true
	default:
		return false, false
	}
}
