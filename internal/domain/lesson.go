package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lesson is the persisted form of a compiled LessonDocument. The compiler
// emits the document as a value object; this row assigns durable identity and
// a version counter.
type Lesson struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	DescriptorID string         `gorm:"column:descriptor_id;not null;index" json:"descriptor_id"`
	Level        string         `gorm:"column:level;index" json:"level"`
	Topic        string         `gorm:"column:topic" json:"topic"`
	Version      int            `gorm:"column:version;not null;default:1" json:"version"`
	Document     datatypes.JSON `gorm:"type:jsonb;column:document;not null" json:"document"`
	CreatedAt    time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Lesson) TableName() string { return "lesson" }

// LessonCompileRun tracks one compilation request end to end.
type LessonCompileRun struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	DescriptorID    string         `gorm:"column:descriptor_id;not null;index" json:"descriptor_id"`
	LessonID        *uuid.UUID     `gorm:"type:uuid;index" json:"lesson_id,omitempty"`
	Status          string         `gorm:"column:status;not null;index" json:"status"` // queued|running|succeeded|failed
	Stage           string         `gorm:"column:stage;index" json:"stage"`            // plan|content|comprehension|production|interaction|assemble
	Progress        int            `gorm:"column:progress;not null;default:0" json:"progress"`
	ProgressMessage string         `gorm:"column:progress_message" json:"progress_message"`
	Error           string         `gorm:"column:error" json:"error"`
	LastErrorAt     *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	Params          datatypes.JSON `gorm:"type:jsonb;column:params" json:"params"`
	CreatedAt       time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (LessonCompileRun) TableName() string { return "lesson_compile_run" }

const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)
