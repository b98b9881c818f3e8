package domain

import (
	"time"

	"github.com/google/uuid"
)

// LLMCallLog records one provider call for operational triage. Writes are
// best-effort; a failed insert never fails a compilation.
type LLMCallLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RunID      *uuid.UUID `gorm:"type:uuid;index" json:"run_id,omitempty"`
	PromptName string     `gorm:"column:prompt_name;not null;index" json:"prompt_name"`
	Attempt    int        `gorm:"column:attempt;not null;default:0" json:"attempt"`
	Model      string     `gorm:"column:model" json:"model"`
	DurationMS int64      `gorm:"column:duration_ms" json:"duration_ms"`
	Success    bool       `gorm:"column:success;not null" json:"success"`
	Cause      string     `gorm:"column:cause" json:"cause"` // validation|provider|timeout
	Error      string     `gorm:"column:error" json:"error"`
	CreatedAt  time.Time  `gorm:"not null;default:now();index" json:"created_at"`
}

func (LLMCallLog) TableName() string { return "llm_call_log" }
