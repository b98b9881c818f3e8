package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LearnerProfile is the stored personalization profile.
type LearnerProfile struct {
	ID                     uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Goals                  datatypes.JSON `gorm:"type:jsonb;column:goals" json:"goals"`
	RegisterPreferences    string         `gorm:"column:register_preferences" json:"register_preferences"`
	CulturalInterests      datatypes.JSON `gorm:"type:jsonb;column:cultural_interests" json:"cultural_interests"`
	PreferredExerciseTypes datatypes.JSON `gorm:"type:jsonb;column:preferred_exercise_types" json:"preferred_exercise_types"`
	ScenarioDetails        string         `gorm:"column:scenario_details" json:"scenario_details"`
	GrammarFocusAreas      datatypes.JSON `gorm:"type:jsonb;column:grammar_focus_areas" json:"grammar_focus_areas"`
	CreatedAt              time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt              gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LearnerProfile) TableName() string { return "learner_profile" }

// ToProfile decodes the row into the pipeline value type. Malformed columns
// decode to empty slices rather than failing a compilation.
func (p *LearnerProfile) ToProfile() *Profile {
	if p == nil {
		return nil
	}
	return &Profile{
		Goals:                  decodeStrings(p.Goals),
		RegisterPreferences:    p.RegisterPreferences,
		CulturalInterests:      decodeStrings(p.CulturalInterests),
		PreferredExerciseTypes: decodeStrings(p.PreferredExerciseTypes),
		ScenarioDetails:        p.ScenarioDetails,
		GrammarFocusAreas:      decodeStrings(p.GrammarFocusAreas),
	}
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func EncodeStrings(values []string) datatypes.JSON {
	if len(values) == 0 {
		return datatypes.JSON([]byte("[]"))
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}
