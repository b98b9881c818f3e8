package prompts

import (
	"fmt"

	"github.com/tatamiapp/tatami-backend/internal/compiler/cards"
)

func cardSchema(name string) func() map[string]any {
	return func() map[string]any {
		s, ok := cards.SchemaFor(name)
		if !ok {
			panic(fmt.Sprintf("prompts: no card schema registered for %q", name))
		}
		return cards.JSONSchema(s)
	}
}

const descriptorBlock = `
TARGET CAN-DO STATEMENT (level {{.Level}}, topic: {{.Topic}}):
{{.Statement}}
English: {{.StatementEN}}`

// RegisterAll registers every prompt. Called once, lazily, from Build.
func RegisterAll() {

	// ---------- Plan ----------

	RegisterSpec(Spec{
		Name:       PromptDomainPlan,
		Version:    1,
		SchemaName: cards.SchemaDomainPlan,
		Schema:     cardSchema(cards.SchemaDomainPlan),
		System: `
You are planning a single language lesson built around one can-do statement.
Produce a compact domain plan: vocabulary buckets, grammar functions, communicative scenarios, and cultural themes.
The plan is authoritative: every later generation step must stay inside it, so choose scenarios and themes concrete enough to write dialogues from.
Return JSON only.`,
		User: descriptorBlock + `

PRE-REQUISITE KIT (items the learner has already encountered; build on these, do not re-teach them):
{{.KitContext}}

KIT REQUIREMENTS (items the lesson content should put to use; weave them into vocabulary buckets and scenarios):
{{.KitRequirements}}

LEARNER PROFILE (personalization source):
{{.ProfileContext}}

Personalization rules:
- register_preferences decides the register of every scenario.
- cultural_interests decide the cultural themes.
- scenario_details decide concrete scenario settings; invent settings only when none are given.
- grammar_focus_areas are emphasized in grammar_functions.

Output rules:
- vocabulary_buckets: 3-5 named buckets, 4-8 words each, all appropriate for level {{.Level}}.
- grammar_functions: 3-6 functional descriptions (what the learner does with the grammar, not metalanguage).
- scenarios: 2-3, each with setting, register, participants.
- cultural_themes: 2-4 short phrases.`,
		Validators: []Validator{
			RequireNonEmpty("Statement", func(in Input) string { return in.Statement }),
			RequireNonEmpty("Level", func(in Input) string { return in.Level }),
		},
	})

	// ---------- Content stage ----------

	RegisterSpec(Spec{
		Name:       PromptObjective,
		Version:    1,
		SchemaName: cards.ArtifactObjective,
		Schema:     cardSchema(cards.ArtifactObjective),
		System: `
You write the learning objective card for a language lesson.
The objective phrasing is reused verbatim by every other card in this lesson, so keep it short, learner-facing, and in English.
Return JSON only.`,
		User: descriptorBlock + `

DOMAIN PLAN (authoritative; the objective must match its scenarios and register):
{{.PlanJSON}}

LEARNER PROFILE (use goals to angle the objective toward why this learner is studying):
{{.ProfileContext}}

Output rules:
- objective: one sentence, "You will be able to ...".
- success_criteria: 3-5 observable behaviors.
- register: the register the plan chose for its primary scenario.`,
		Validators: []Validator{
			RequireNonEmpty("PlanJSON", func(in Input) string { return in.PlanJSON }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptVocabulary,
		Version:    1,
		SchemaName: cards.ArtifactVocabulary,
		Schema:     cardSchema(cards.ArtifactVocabulary),
		System: `
You write the vocabulary card for a language lesson.
Every item must come from the domain plan's vocabulary buckets; do not introduce off-plan words.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE (phrase examples consistently with it):
{{.ObjectiveText}}

DOMAIN PLAN (take words from vocabulary_buckets only):
{{.PlanJSON}}

PRE-REQUISITE KIT (already known; use in example sentences freely, but do not list as new items):
{{.KitContext}}

KIT REQUIREMENTS (prefer example sentences that reuse these):
{{.KitRequirements}}

Output rules:
- items: 10-18 entries; each has term (target language), reading, gloss (English), example (one sentence using the term).`,
		Validators: []Validator{
			RequireNonEmpty("PlanJSON", func(in Input) string { return in.PlanJSON }),
			RequireNonEmpty("ObjectiveText", func(in Input) string { return in.ObjectiveText }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptGrammarPatterns,
		Version:    1,
		SchemaName: cards.ArtifactGrammarPatterns,
		Schema:     cardSchema(cards.ArtifactGrammarPatterns),
		System: `
You write the grammar patterns card for a language lesson.
Cover exactly the grammar functions the domain plan names, one or two patterns per function.
Do not include planning fields or metalanguage commentary in the output.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE:
{{.ObjectiveText}}

DOMAIN PLAN (grammar_functions is the checklist to cover):
{{.PlanJSON}}

PRE-REQUISITE KIT (grammar the learner already knows; build example sentences on top of it):
{{.KitContext}}

KIT REQUIREMENTS (reuse these grammar patterns inside examples where natural):
{{.KitRequirements}}

Output rules:
- patterns: one entry per pattern; pattern (target-language form), function (what it does), example, example_gloss.`,
		Validators: []Validator{
			RequireNonEmpty("PlanJSON", func(in Input) string { return in.PlanJSON }),
			RequireNonEmpty("ObjectiveText", func(in Input) string { return in.ObjectiveText }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptFormulaicExpressions,
		Version:    1,
		SchemaName: cards.ArtifactFormulaicExpressions,
		Schema:     cardSchema(cards.ArtifactFormulaicExpressions),
		System: `
You write the formulaic expressions card for a language lesson: fixed phrases the learner can deploy whole.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE:
{{.ObjectiveText}}

DOMAIN PLAN (expressions must fit its scenarios and register):
{{.PlanJSON}}

KIT REQUIREMENTS (include required phrases among the expressions where they fit the scenarios):
{{.KitRequirements}}

Output rules:
- expressions: 6-10 entries; phrase (target language), usage (when to say it), register.`,
		Validators: []Validator{
			RequireNonEmpty("PlanJSON", func(in Input) string { return in.PlanJSON }),
			RequireNonEmpty("ObjectiveText", func(in Input) string { return in.ObjectiveText }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptDialogue,
		Version:    1,
		SchemaName: cards.ArtifactDialogue,
		Schema:     cardSchema(cards.ArtifactDialogue),
		System: `
You write the model dialogue card for a language lesson.
The dialogue must take place in a scenario chosen by the domain plan; never invent a new scenario.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE (the dialogue demonstrates exactly this):
{{.ObjectiveText}}

DOMAIN PLAN (pick one of its scenarios; use its register):
{{.PlanJSON}}

LEARNER PROFILE (register_preferences picks the formality of this dialogue; scenario_details make the setting concrete):
{{.ProfileContext}}

KIT REQUIREMENTS (work required words and phrases into the lines naturally):
{{.KitRequirements}}

Output rules:
- title, scenario (one sentence), register.
- turns: 8-14 turns, two speakers, each with speaker, line (target language), gloss (English).`,
		Validators: []Validator{
			RequireNonEmpty("PlanJSON", func(in Input) string { return in.PlanJSON }),
			RequireNonEmpty("ObjectiveText", func(in Input) string { return in.ObjectiveText }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptCulture,
		Version:    1,
		SchemaName: cards.ArtifactCulture,
		Schema:     cardSchema(cards.ArtifactCulture),
		System: `
You write the culture notes card for a language lesson.
Themes come from the domain plan's cultural_themes; notes explain behavior a learner needs in the plan's scenarios.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE:
{{.ObjectiveText}}

DOMAIN PLAN (cultural_themes is the list to expand):
{{.PlanJSON}}

LEARNER PROFILE (cultural_interests tell you which angles this learner cares about):
{{.ProfileContext}}

Output rules:
- themes: one entry per plan theme; theme (short title), note (3-5 sentences, practical).`,
		Validators: []Validator{
			RequireNonEmpty("PlanJSON", func(in Input) string { return in.PlanJSON }),
		},
	})

	// ---------- Comprehension stage ----------

	RegisterSpec(Spec{
		Name:       PromptReading,
		Version:    1,
		SchemaName: cards.ArtifactReading,
		Schema:     cardSchema(cards.ArtifactReading),
		System: `
You write the reading passage card for a language lesson.
The passage retells or extends the situation of the lesson's model dialogue in connected prose at the same level.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE:
{{.ObjectiveText}}

MODEL DIALOGUE (the passage is grounded in this exact situation and vocabulary):
{{.DialogueJSON}}

KIT REQUIREMENTS (reuse required items the dialogue may have missed):
{{.KitRequirements}}

Output rules:
- title, body (120-200 words in the target language), gloss_notes (5-10 "term = gloss" lines for the hardest items).`,
		Validators: []Validator{
			RequireNonEmpty("DialogueJSON", func(in Input) string { return in.DialogueJSON }),
			RequireNonEmpty("ObjectiveText", func(in Input) string { return in.ObjectiveText }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptComprehensionEx,
		Version:    1,
		SchemaName: cards.ArtifactComprehensionEx,
		Schema:     cardSchema(cards.ArtifactComprehensionEx),
		System: `
You write comprehension exercises for a language lesson's reading passage.
Every question must be answerable from the passage alone.
Return JSON only.`,
		User: descriptorBlock + `

READING PASSAGE (the only source of answers):
{{.ReadingJSON}}

LEARNER PROFILE (preferred_exercise_types bias the mix of exercise types; never use a type outside the allowed list):
{{.ProfileContext}}

Allowed exercise types: {{.ExerciseTypesCSV}}

Output rules:
- exercises: 5-8 entries; type, prompt, options (empty list unless the type needs options), answer.`,
		Validators: []Validator{
			RequireNonEmpty("ReadingJSON", func(in Input) string { return in.ReadingJSON }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptComprehensionTutor,
		Version:    1,
		SchemaName: cards.ArtifactComprehensionTutor,
		Schema:     cardSchema(cards.ArtifactComprehensionTutor),
		System: `
You specify a tutoring agent that helps a learner through a reading passage.
The spec is consumed by a downstream conversational runtime, so write goals and hints as direct instructions to the tutor.
Return JSON only.`,
		User: descriptorBlock + `

READING PASSAGE (the tutor's material):
{{.ReadingJSON}}

LEARNER PROFILE (use register_preferences for the tutor's tone; use goals to pick what to emphasize):
{{.ProfileContext}}

Output rules:
- persona: 2-3 sentences describing the tutor.
- goals: 3-5 tutoring goals.
- hints: 4-8 hints the tutor may reveal progressively, ordered from gentle to explicit.`,
		Validators: []Validator{
			RequireNonEmpty("ReadingJSON", func(in Input) string { return in.ReadingJSON }),
		},
	})

	// ---------- Production stage ----------

	RegisterSpec(Spec{
		Name:       PromptGuidedDialogue,
		Version:    1,
		SchemaName: cards.ArtifactGuidedDialogue,
		Schema:     cardSchema(cards.ArtifactGuidedDialogue),
		System: `
You write a guided dialogue card: a scaffolded dialogue where the learner produces one side.
Stay inside the scenario and language already established by the lesson's content and comprehension cards.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE:
{{.ObjectiveText}}

CONTENT CARDS (vocabulary, grammar, expressions, model dialogue; the language inventory to draw from):
{{.ContentJSON}}

COMPREHENSION CARDS (what the learner has now read and practiced):
{{.ComprehensionJSON}}

LEARNER PROFILE (register_preferences picks formality; scenario_details keep the setting consistent):
{{.ProfileContext}}

Output rules:
- scenario, register, learner_role (which side the learner speaks).
- turns: 8-12 turns; partner turns have full lines; learner turns have line set to a model answer and hint set to an English cue.`,
		Validators: []Validator{
			RequireNonEmpty("ContentJSON", func(in Input) string { return in.ContentJSON }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptProductionEx,
		Version:    1,
		SchemaName: cards.ArtifactProductionEx,
		Schema:     cardSchema(cards.ArtifactProductionEx),
		System: `
You write production exercises for a language lesson: the learner writes or says target-language output.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE:
{{.ObjectiveText}}

CONTENT CARDS (the language inventory every exercise must stay inside):
{{.ContentJSON}}

COMPREHENSION CARDS:
{{.ComprehensionJSON}}

LEARNER PROFILE (preferred_exercise_types bias the mix):
{{.ProfileContext}}

Allowed exercise types: {{.ExerciseTypesCSV}}

Output rules:
- exercises: 4-6 entries; type, prompt (English instruction), example_answer (target language).`,
		Validators: []Validator{
			RequireNonEmpty("ContentJSON", func(in Input) string { return in.ContentJSON }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptProductionEvaluator,
		Version:    1,
		SchemaName: cards.ArtifactProductionEvaluator,
		Schema:     cardSchema(cards.ArtifactProductionEvaluator),
		System: `
You specify the evaluation rubric an automated evaluator applies to this lesson's production exercises.
Criteria must be checkable against learner output without human judgment.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE (criteria measure progress toward exactly this):
{{.ObjectiveText}}

CONTENT CARDS (name concrete vocabulary and patterns in the criteria):
{{.ContentJSON}}

COMPREHENSION CARDS:
{{.ComprehensionJSON}}

Output rules:
- criteria: 4-6 entries; name (short), description (what the evaluator checks and what counts as meeting it).`,
		Validators: []Validator{
			RequireNonEmpty("ContentJSON", func(in Input) string { return in.ContentJSON }),
		},
	})

	// ---------- Interaction stage ----------

	RegisterSpec(Spec{
		Name:       PromptInteractiveDialogue,
		Version:    1,
		SchemaName: cards.ArtifactInteractiveDialogue,
		Schema:     cardSchema(cards.ArtifactInteractiveDialogue),
		System: `
You write an interactive dialogue card: a branching conversation a runtime plays against the learner.
Everything must stay inside the scenario and language the lesson has already built.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE:
{{.ObjectiveText}}

CONTENT CARDS:
{{.ContentJSON}}

COMPREHENSION CARDS:
{{.ComprehensionJSON}}

PRODUCTION CARDS (the learner has practiced these; the interaction can assume them):
{{.ProductionJSON}}

LEARNER PROFILE (register_preferences picks formality):
{{.ProfileContext}}

Output rules:
- scenario, register, opening_line (target language, spoken by the partner).
- branches: 4-8 entries; cue (kind of learner reply to match), response (partner's next line).`,
		Validators: []Validator{
			RequireNonEmpty("ContentJSON", func(in Input) string { return in.ContentJSON }),
			RequireNonEmpty("ProductionJSON", func(in Input) string { return in.ProductionJSON }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptInteractionActivities,
		Version:    1,
		SchemaName: cards.ArtifactInteractionActivities,
		Schema:     cardSchema(cards.ArtifactInteractionActivities),
		System: `
You write interaction activities for a language lesson: live tasks a learner performs with a partner or agent.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE:
{{.ObjectiveText}}

CONTENT CARDS:
{{.ContentJSON}}

COMPREHENSION CARDS:
{{.ComprehensionJSON}}

PRODUCTION CARDS:
{{.ProductionJSON}}

LEARNER PROFILE (preferred_exercise_types and goals shape the activities):
{{.ProfileContext}}

Output rules:
- activities: 3-5 entries; title, instructions (learner-facing, English), exercise_type.`,
		Validators: []Validator{
			RequireNonEmpty("ContentJSON", func(in Input) string { return in.ContentJSON }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptScenarioManager,
		Version:    1,
		SchemaName: cards.ArtifactScenarioManager,
		Schema:     cardSchema(cards.ArtifactScenarioManager),
		System: `
You specify the scenario manager that drives this lesson's live interaction: a small state machine a runtime walks while conversing with the learner.
Return JSON only.`,
		User: descriptorBlock + `

LESSON OBJECTIVE (reaching the final state means the objective was demonstrated):
{{.ObjectiveText}}

CONTENT CARDS:
{{.ContentJSON}}

COMPREHENSION CARDS:
{{.ComprehensionJSON}}

PRODUCTION CARDS:
{{.ProductionJSON}}

Output rules:
- scenario: one sentence; persona: the agent the learner talks to.
- states: 3-6 ordered states; name, goal (what the learner must do to advance), transition_cue (what the manager listens for).`,
		Validators: []Validator{
			RequireNonEmpty("ContentJSON", func(in Input) string { return in.ContentJSON }),
			RequireNonEmpty("ProductionJSON", func(in Input) string { return in.ProductionJSON }),
		},
	})
}
