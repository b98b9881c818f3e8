package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tatamiapp/tatami-backend/internal/domain"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
)

type LessonRepo interface {
	Create(ctx context.Context, tx *gorm.DB, lesson *domain.Lesson) (*domain.Lesson, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Lesson, error)
	GetLatestByDescriptor(ctx context.Context, tx *gorm.DB, descriptorID string, userID *uuid.UUID) (*domain.Lesson, error)
	NextVersion(ctx context.Context, tx *gorm.DB, descriptorID string, userID *uuid.UUID) (int, error)
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return &lessonRepo{db: db, log: baseLog.With("repo", "LessonRepo")}
}

func (r *lessonRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *lessonRepo) Create(ctx context.Context, tx *gorm.DB, lesson *domain.Lesson) (*domain.Lesson, error) {
	if lesson == nil {
		return nil, errors.New("lesson required")
	}
	if lesson.ID == uuid.Nil {
		lesson.ID = uuid.New()
	}
	if err := r.conn(tx).WithContext(ctx).Create(lesson).Error; err != nil {
		return nil, err
	}
	return lesson, nil
}

func (r *lessonRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.Lesson, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var lesson domain.Lesson
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&lesson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *lessonRepo) GetLatestByDescriptor(ctx context.Context, tx *gorm.DB, descriptorID string, userID *uuid.UUID) (*domain.Lesson, error) {
	q := r.conn(tx).WithContext(ctx).Where("descriptor_id = ?", descriptorID)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	} else {
		q = q.Where("user_id IS NULL")
	}
	var lesson domain.Lesson
	err := q.Order("version DESC").Limit(1).First(&lesson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func (r *lessonRepo) NextVersion(ctx context.Context, tx *gorm.DB, descriptorID string, userID *uuid.UUID) (int, error) {
	latest, err := r.GetLatestByDescriptor(ctx, tx, descriptorID, userID)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 1, nil
	}
	return latest.Version + 1, nil
}
