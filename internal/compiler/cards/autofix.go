package cards

import (
	"fmt"
	"strings"
)

// AutoFix applies the deterministic repairs that need no LLM round-trip:
// stripping leaked top-level fields and reconstructing a missing `patterns`
// field from a leaked `plan.grammar_functions` when the shapes line up. It
// returns a fixed copy and a description of each applied fix; the input
// payload is not mutated.
func AutoFix(payload map[string]any, schema CardSchema) (map[string]any, []string) {
	if payload == nil {
		return nil, nil
	}

	fixed := make(map[string]any, len(payload))
	for k, v := range payload {
		fixed[k] = v
	}
	var applied []string

	// Leaked internal fields ("plan", "metalanguage", anything undeclared)
	// are removed rather than repaired: the model was never asked for them.
	removed := map[string]any{}
	for key := range fixed {
		if _, ok := schema.Fields[key]; !ok {
			removed[key] = fixed[key]
			delete(fixed, key)
			applied = append(applied, fmt.Sprintf("removed unexpected field %q", key))
		}
	}

	if spec, wantsPatterns := schema.Fields["patterns"]; wantsPatterns && spec.Kind == KindObjectList {
		if _, present := fixed["patterns"]; !present {
			if patterns, ok := patternsFromLeakedPlan(removed["plan"]); ok {
				fixed["patterns"] = patterns
				applied = append(applied, "reconstructed patterns from plan.grammar_functions")
			}
		}
	}

	return fixed, applied
}

// patternsFromLeakedPlan rebuilds a patterns list when the model put its
// grammar content under a leaked `plan` object instead of the schema field.
func patternsFromLeakedPlan(plan any) ([]any, bool) {
	obj, ok := plan.(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := obj["grammar_functions"].([]any)
	if !ok || len(raw) == 0 {
		return nil, false
	}

	patterns := make([]any, 0, len(raw))
	for _, entry := range raw {
		switch v := entry.(type) {
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				return nil, false
			}
			patterns = append(patterns, map[string]any{"pattern": v, "function": v})
		case map[string]any:
			if _, has := v["pattern"]; !has {
				return nil, false
			}
			patterns = append(patterns, v)
		default:
			return nil, false
		}
	}
	return patterns, true
}
