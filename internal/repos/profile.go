package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tatamiapp/tatami-backend/internal/domain"
	"github.com/tatamiapp/tatami-backend/internal/platform/logger"
)

type ProfileRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*domain.LearnerProfile, error)
	Upsert(ctx context.Context, tx *gorm.DB, profile *domain.LearnerProfile) (*domain.LearnerProfile, error)
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return &profileRepo{db: db, log: baseLog.With("repo", "ProfileRepo")}
}

func (r *profileRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *profileRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*domain.LearnerProfile, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	var profile domain.LearnerProfile
	err := r.conn(tx).WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepo) Upsert(ctx context.Context, tx *gorm.DB, profile *domain.LearnerProfile) (*domain.LearnerProfile, error) {
	if profile == nil || profile.UserID == uuid.Nil {
		return nil, errors.New("profile with user_id required")
	}
	existing, err := r.GetByUserID(ctx, tx, profile.UserID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if profile.ID == uuid.Nil {
			profile.ID = uuid.New()
		}
		if err := r.conn(tx).WithContext(ctx).Create(profile).Error; err != nil {
			return nil, err
		}
		return profile, nil
	}
	profile.ID = existing.ID
	if err := r.conn(tx).WithContext(ctx).Save(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}
