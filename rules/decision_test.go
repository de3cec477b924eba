package rules

import (
	"encoding/json"
	"testing"
)

func TestDecideFirstMatchingDenyWins(t *testing.T) {
	parsed := mustParse(t, "if a > 1 then allow\nif a > 2 then deny first\nif a > 3 then deny second")
	decision, _ := Evaluate(parsed, map[string]any{"a": 10}, DefaultDecisionOptions())

	if decision.Verdict != ActionDeny {
		t.Fatalf("expected deny, got %s", decision.Verdict)
	}
	if decision.Reason != "first" {
		t.Errorf("expected reason 'first', got %q", decision.Reason)
	}
	if decision.RuleIndex != 1 {
		t.Errorf("expected rule index 1, got %d", decision.RuleIndex)
	}
}

func TestDecideLastDenyTieBreak(t *testing.T) {
	parsed := mustParse(t, "if a > 2 then deny first\nif a > 3 then deny second")
	opts := DecisionOptions{TieBreak: LastDenyWins}
	decision, _ := Evaluate(parsed, map[string]any{"a": 10}, opts)

	if decision.Reason != "second" || decision.RuleIndex != 1 {
		t.Errorf("expected second deny to win, got %+v", decision)
	}
}

func TestDecideAllowWhenOnlyAllowsMatch(t *testing.T) {
	parsed := mustParse(t, "if a > 100 then deny\nif status == \"approved\" then allow proceed")
	decision, results := Evaluate(parsed, map[string]any{"a": 1, "status": "approved"}, DefaultDecisionOptions())

	if decision.Verdict != ActionAllow {
		t.Fatalf("expected allow, got %s", decision.Verdict)
	}
	if decision.Modifier != "proceed" {
		t.Errorf("expected modifier 'proceed', got %q", decision.Modifier)
	}
	if decision.Defaulted {
		t.Error("decision should not be defaulted")
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}
}

func TestDecideDefaultVerdict(t *testing.T) {
	parsed := mustParse(t, "if a > 100 then deny")

	testCases := []struct {
		name string
		opts DecisionOptions
		want Action
	}{
		{"zero options allow", DecisionOptions{}, ActionAllow},
		{"allow by default", DefaultDecisionOptions(), ActionAllow},
		{"deny by default", DecisionOptions{DefaultVerdict: ActionDeny}, ActionDeny},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decision, _ := Evaluate(parsed, map[string]any{"a": 1}, tc.opts)
			if decision.Verdict != tc.want {
				t.Errorf("expected %s, got %s", tc.want, decision.Verdict)
			}
			if !decision.Defaulted || decision.RuleIndex != -1 {
				t.Errorf("expected defaulted decision, got %+v", decision)
			}
		})
	}
}

func TestRuleJSONEncoding(t *testing.T) {
	parsed := mustParse(t, `if status == "approved" then allow proceed`)

	data, err := json.Marshal(parsed[0])
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["value"] != "approved" {
		t.Errorf("expected value to encode as a plain string, got %v", decoded["value"])
	}
	if decoded["operator"] != "eq" {
		t.Errorf("expected operator eq, got %v", decoded["operator"])
	}
}

func TestValueOf(t *testing.T) {
	testCases := []struct {
		name string
		in   any
		kind Kind
		ok   bool
	}{
		{"float", 1.5, KindNumber, true},
		{"int64", int64(3), KindNumber, true},
		{"uint8", uint8(3), KindNumber, true},
		{"json number", json.Number("12"), KindNumber, true},
		{"string", "x", KindString, true},
		{"bool", false, KindBool, true},
		{"nil", nil, KindInvalid, false},
		{"map", map[string]any{}, KindInvalid, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := ValueOf(tc.in)
			if ok != tc.ok || v.Kind() != tc.kind {
				t.Errorf("ValueOf(%v) = (%s, %v), want (%s, %v)", tc.in, v.Kind(), ok, tc.kind, tc.ok)
			}
		})
	}
}
