package prompts

type PromptName string

const (
	// Plan
	PromptDomainPlan PromptName = "domain_plan"

	// Content stage
	PromptObjective             PromptName = "objective"
	PromptVocabulary            PromptName = "vocabulary"
	PromptGrammarPatterns       PromptName = "grammar_patterns"
	PromptFormulaicExpressions  PromptName = "formulaic_expressions"
	PromptDialogue              PromptName = "dialogue"
	PromptCulture               PromptName = "culture"

	// Comprehension stage
	PromptReading            PromptName = "reading"
	PromptComprehensionEx    PromptName = "comprehension_exercises"
	PromptComprehensionTutor PromptName = "comprehension_tutor_spec"

	// Production stage
	PromptGuidedDialogue      PromptName = "guided_dialogue"
	PromptProductionEx        PromptName = "production_exercises"
	PromptProductionEvaluator PromptName = "production_evaluator_spec"

	// Interaction stage
	PromptInteractiveDialogue   PromptName = "interactive_dialogue"
	PromptInteractionActivities PromptName = "interaction_activities"
	PromptScenarioManager       PromptName = "scenario_manager_spec"
)
