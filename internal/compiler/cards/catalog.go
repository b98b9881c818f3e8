package cards

// Artifact names, one per card type. Stage membership lives in the
// orchestrator's stage tables.
const (
	ArtifactObjective             = "objective"
	ArtifactVocabulary            = "vocabulary"
	ArtifactGrammarPatterns       = "grammar_patterns"
	ArtifactFormulaicExpressions  = "formulaic_expressions"
	ArtifactDialogue              = "dialogue"
	ArtifactCulture               = "culture"
	ArtifactReading               = "reading"
	ArtifactComprehensionEx       = "comprehension_exercises"
	ArtifactComprehensionTutor    = "comprehension_tutor_spec"
	ArtifactGuidedDialogue        = "guided_dialogue"
	ArtifactProductionEx          = "production_exercises"
	ArtifactProductionEvaluator   = "production_evaluator_spec"
	ArtifactInteractiveDialogue   = "interactive_dialogue"
	ArtifactInteractionActivities = "interaction_activities"
	ArtifactScenarioManager       = "scenario_manager_spec"
)

// SchemaDomainPlan names the plan schema; the plan is validated like a card
// but is not a stage artifact.
const SchemaDomainPlan = "domain_plan"

var registerEnum = []string{"casual", "polite", "formal"}

var exerciseTypeEnum = []string{
	"multiple_choice", "true_false", "fill_in_blank", "short_answer",
	"matching", "ordering", "role_play", "open_response",
}

var catalog = map[string]CardSchema{
	ArtifactObjective: {
		Name: ArtifactObjective,
		Fields: map[string]FieldSpec{
			"objective":        {Kind: KindString},
			"success_criteria": {Kind: KindStringList},
			"register":         {Kind: KindEnum, Enum: registerEnum},
		},
		Required: []string{"objective", "success_criteria", "register"},
	},
	ArtifactVocabulary: {
		Name: ArtifactVocabulary,
		Fields: map[string]FieldSpec{
			"items": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"term": KindString, "reading": KindString,
					"gloss": KindString, "example": KindString,
				},
				ItemRequired: []string{"term", "gloss"},
			},
		},
		Required: []string{"items"},
	},
	ArtifactGrammarPatterns: {
		Name: ArtifactGrammarPatterns,
		Fields: map[string]FieldSpec{
			"patterns": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"pattern": KindString, "function": KindString,
					"example": KindString, "example_gloss": KindString,
				},
				ItemRequired: []string{"pattern"},
			},
		},
		Required: []string{"patterns"},
	},
	ArtifactFormulaicExpressions: {
		Name: ArtifactFormulaicExpressions,
		Fields: map[string]FieldSpec{
			"expressions": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"phrase": KindString, "usage": KindString, "register": KindString,
				},
				ItemRequired: []string{"phrase"},
			},
		},
		Required: []string{"expressions"},
	},
	ArtifactDialogue: {
		Name: ArtifactDialogue,
		Fields: map[string]FieldSpec{
			"title":    {Kind: KindString},
			"scenario": {Kind: KindString},
			"register": {Kind: KindEnum, Enum: registerEnum},
			"turns": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"speaker": KindString, "line": KindString, "gloss": KindString,
				},
				ItemRequired: []string{"speaker", "line"},
			},
		},
		Required: []string{"title", "scenario", "register", "turns"},
	},
	ArtifactCulture: {
		Name: ArtifactCulture,
		Fields: map[string]FieldSpec{
			"themes": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"theme": KindString, "note": KindString,
				},
				ItemRequired: []string{"theme", "note"},
			},
		},
		Required: []string{"themes"},
	},
	ArtifactReading: {
		Name: ArtifactReading,
		Fields: map[string]FieldSpec{
			"title":       {Kind: KindString},
			"body":        {Kind: KindString},
			"gloss_notes": {Kind: KindStringList},
		},
		Required: []string{"title", "body", "gloss_notes"},
	},
	ArtifactComprehensionEx: {
		Name: ArtifactComprehensionEx,
		Fields: map[string]FieldSpec{
			"exercises": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"type": KindString, "prompt": KindString,
					"options": KindStringList, "answer": KindString,
				},
				ItemRequired: []string{"type", "prompt", "answer"},
			},
		},
		Required: []string{"exercises"},
	},
	ArtifactComprehensionTutor: {
		Name: ArtifactComprehensionTutor,
		Fields: map[string]FieldSpec{
			"persona": {Kind: KindString},
			"goals":   {Kind: KindStringList},
			"hints":   {Kind: KindStringList},
		},
		Required: []string{"persona", "goals", "hints"},
	},
	ArtifactGuidedDialogue: {
		Name: ArtifactGuidedDialogue,
		Fields: map[string]FieldSpec{
			"scenario":     {Kind: KindString},
			"register":     {Kind: KindEnum, Enum: registerEnum},
			"learner_role": {Kind: KindString},
			"turns": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"speaker": KindString, "line": KindString, "hint": KindString,
				},
				ItemRequired: []string{"speaker", "line"},
			},
		},
		Required: []string{"scenario", "register", "learner_role", "turns"},
	},
	ArtifactProductionEx: {
		Name: ArtifactProductionEx,
		Fields: map[string]FieldSpec{
			"exercises": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"type": KindString, "prompt": KindString, "example_answer": KindString,
				},
				ItemRequired: []string{"type", "prompt"},
			},
		},
		Required: []string{"exercises"},
	},
	ArtifactProductionEvaluator: {
		Name: ArtifactProductionEvaluator,
		Fields: map[string]FieldSpec{
			"criteria": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"name": KindString, "description": KindString,
				},
				ItemRequired: []string{"name", "description"},
			},
		},
		Required: []string{"criteria"},
	},
	ArtifactInteractiveDialogue: {
		Name: ArtifactInteractiveDialogue,
		Fields: map[string]FieldSpec{
			"scenario":     {Kind: KindString},
			"register":     {Kind: KindEnum, Enum: registerEnum},
			"opening_line": {Kind: KindString},
			"branches": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"cue": KindString, "response": KindString,
				},
				ItemRequired: []string{"cue", "response"},
			},
		},
		Required: []string{"scenario", "register", "opening_line", "branches"},
	},
	ArtifactInteractionActivities: {
		Name: ArtifactInteractionActivities,
		Fields: map[string]FieldSpec{
			"activities": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"title": KindString, "instructions": KindString, "exercise_type": KindString,
				},
				ItemRequired: []string{"title", "instructions"},
			},
		},
		Required: []string{"activities"},
	},
	ArtifactScenarioManager: {
		Name: ArtifactScenarioManager,
		Fields: map[string]FieldSpec{
			"scenario": {Kind: KindString},
			"persona":  {Kind: KindString},
			"states": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"name": KindString, "goal": KindString, "transition_cue": KindString,
				},
				ItemRequired: []string{"name", "goal"},
			},
		},
		Required: []string{"scenario", "persona", "states"},
	},
	SchemaDomainPlan: {
		Name: SchemaDomainPlan,
		Fields: map[string]FieldSpec{
			"vocabulary_buckets": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"name": KindString, "words": KindStringList,
				},
				ItemRequired: []string{"name", "words"},
			},
			"grammar_functions": {Kind: KindStringList},
			"scenarios": {
				Kind: KindObjectList,
				ItemFields: map[string]FieldKind{
					"setting": KindString, "register": KindString, "participants": KindStringList,
				},
				ItemRequired: []string{"setting", "register"},
			},
			"cultural_themes": {Kind: KindStringList},
		},
		Required: []string{"vocabulary_buckets", "grammar_functions", "scenarios", "cultural_themes"},
	},
}

// SchemaFor returns the declared schema for an artifact (or plan) name.
func SchemaFor(name string) (CardSchema, bool) {
	s, ok := catalog[name]
	return s, ok
}

// ExerciseTypes lists the exercise type vocabulary surfaced to prompts.
func ExerciseTypes() []string {
	out := make([]string, len(exerciseTypeEnum))
	copy(out, exerciseTypeEnum)
	return out
}
