package cards

import "testing"

func TestAutoFixStripsLeakedFields(t *testing.T) {
	schema, _ := SchemaFor(ArtifactGrammarPatterns)
	payload := map[string]any{
		"patterns":     []any{map[string]any{"pattern": "〜てもいいですか"}},
		"plan":         map[string]any{"grammar_functions": []any{"asking permission"}},
		"metalanguage": "notes about the output",
	}

	fixed, applied := AutoFix(payload, schema)
	if len(applied) != 2 {
		t.Fatalf("expected 2 fixes, got %v", applied)
	}
	if _, ok := fixed["plan"]; ok {
		t.Fatalf("plan not removed")
	}
	if _, ok := fixed["metalanguage"]; ok {
		t.Fatalf("metalanguage not removed")
	}
	if errs := Validate(fixed, schema); len(errs) != 0 {
		t.Fatalf("fixed payload should validate: %v", errs)
	}
	// Input untouched.
	if _, ok := payload["plan"]; !ok {
		t.Fatalf("AutoFix mutated its input")
	}
}

func TestAutoFixReconstructsPatternsFromLeakedPlan(t *testing.T) {
	schema, _ := SchemaFor(ArtifactGrammarPatterns)
	payload := map[string]any{
		"plan": map[string]any{
			"grammar_functions": []any{"asking permission", "making requests"},
		},
	}

	fixed, applied := AutoFix(payload, schema)
	if len(applied) != 2 {
		t.Fatalf("expected removal + reconstruction, got %v", applied)
	}
	patterns, ok := fixed["patterns"].([]any)
	if !ok || len(patterns) != 2 {
		t.Fatalf("patterns not reconstructed: %v", fixed["patterns"])
	}
	first := patterns[0].(map[string]any)
	if first["pattern"] != "asking permission" {
		t.Fatalf("reconstructed pattern = %v", first)
	}
	if errs := Validate(fixed, schema); len(errs) != 0 {
		t.Fatalf("reconstructed payload should validate: %v", errs)
	}
}

func TestAutoFixKeepsExistingPatterns(t *testing.T) {
	schema, _ := SchemaFor(ArtifactGrammarPatterns)
	payload := map[string]any{
		"patterns": []any{map[string]any{"pattern": "real"}},
		"plan":     map[string]any{"grammar_functions": []any{"leaked"}},
	}

	fixed, _ := AutoFix(payload, schema)
	patterns := fixed["patterns"].([]any)
	if len(patterns) != 1 || patterns[0].(map[string]any)["pattern"] != "real" {
		t.Fatalf("existing patterns overwritten: %v", patterns)
	}
}

func TestAutoFixRejectsUnusablePlanShapes(t *testing.T) {
	schema, _ := SchemaFor(ArtifactGrammarPatterns)
	for name, plan := range map[string]any{
		"not an object":    "plain string",
		"no functions":     map[string]any{},
		"empty functions":  map[string]any{"grammar_functions": []any{}},
		"blank entry":      map[string]any{"grammar_functions": []any{"  "}},
		"map sans pattern": map[string]any{"grammar_functions": []any{map[string]any{"function": "x"}}},
	} {
		fixed, _ := AutoFix(map[string]any{"plan": plan}, schema)
		if _, ok := fixed["patterns"]; ok {
			t.Fatalf("%s: patterns reconstructed from unusable plan", name)
		}
	}
}

func TestAutoFixNoopOnCleanPayload(t *testing.T) {
	schema, _ := SchemaFor(ArtifactObjective)
	payload := map[string]any{
		"objective":        "You will be able to order food.",
		"success_criteria": []any{"orders politely"},
		"register":         "polite",
	}
	fixed, applied := AutoFix(payload, schema)
	if len(applied) != 0 {
		t.Fatalf("clean payload got fixes: %v", applied)
	}
	if len(fixed) != len(payload) {
		t.Fatalf("clean payload changed shape")
	}
}

func TestAutoFixNilPayload(t *testing.T) {
	schema, _ := SchemaFor(ArtifactObjective)
	fixed, applied := AutoFix(nil, schema)
	if fixed != nil || applied != nil {
		t.Fatalf("nil payload should pass through: %v %v", fixed, applied)
	}
}
