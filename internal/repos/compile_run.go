package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tatamiapp/tatami-backend/internal/domain"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
)

type CompileRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, run *domain.LessonCompileRun) (*domain.LessonCompileRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.LessonCompileRun, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause string) error
	MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, lessonID uuid.UUID) error
}

type compileRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCompileRunRepo(db *gorm.DB, baseLog *logger.Logger) CompileRunRepo {
	return &compileRunRepo{db: db, log: baseLog.With("repo", "CompileRunRepo")}
}

func (r *compileRunRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *compileRunRepo) Create(ctx context.Context, tx *gorm.DB, run *domain.LessonCompileRun) (*domain.LessonCompileRun, error) {
	if run == nil {
		return nil, errors.New("run required")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusQueued
	}
	if err := r.conn(tx).WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *compileRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.LessonCompileRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run domain.LessonCompileRun
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *compileRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.conn(tx).WithContext(ctx).
		Model(&domain.LessonCompileRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *compileRunRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause string) error {
	now := time.Now().UTC()
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{
		"status":        domain.RunStatusFailed,
		"error":         cause,
		"last_error_at": &now,
	})
}

func (r *compileRunRepo) MarkSucceeded(ctx context.Context, tx *gorm.DB, id uuid.UUID, lessonID uuid.UUID) error {
	return r.UpdateFields(ctx, tx, id, map[string]interface{}{
		"status":    domain.RunStatusSucceeded,
		"lesson_id": lessonID,
		"progress":  100,
	})
}
