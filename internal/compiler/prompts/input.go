package prompts

// Input is a superset of all fields any prompt might need. Missing fields
// render empty strings (templates use missingkey=zero).
//
// Context fragments (KitContext, KitRequirements, ProfileContext) arrive
// pre-labeled and separate so each template can attach its own instructions
// to each fragment; they are never pre-concatenated upstream.
type Input struct {
	// Descriptor
	Level       string
	Topic       string
	Statement   string
	StatementEN string

	// Context fragments
	KitContext      string
	KitRequirements string
	ProfileContext  string

	// Plan + upstream artifacts (JSON blobs)
	PlanJSON          string
	ObjectiveText     string
	DialogueJSON      string
	ReadingJSON       string
	ContentJSON       string
	ComprehensionJSON string
	ProductionJSON    string

	// Prompt vocabulary
	ExerciseTypesCSV string
}
