package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tatamiapp/tatami-backend/internal/domain"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
)

type LLMCallLogRepo interface {
	// Record inserts best-effort: errors are logged, never returned upward.
	Record(ctx context.Context, entry *domain.LLMCallLog)
}

type llmCallLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLLMCallLogRepo(db *gorm.DB, baseLog *logger.Logger) LLMCallLogRepo {
	return &llmCallLogRepo{db: db, log: baseLog.With("repo", "LLMCallLogRepo")}
}

func (r *llmCallLogRepo) Record(ctx context.Context, entry *domain.LLMCallLog) {
	if entry == nil {
		return
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.log.Warn("llm call log insert failed", "prompt", entry.PromptName, "error", err)
	}
}
