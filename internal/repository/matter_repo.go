package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MatterRepository interface {
	Create(ctx context.Context, matter *model.Matter) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Matter, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Matter, error)
	Update(ctx context.Context, matter *model.Matter) error
}

type matterRepository struct {
	db *gorm.DB
}

func NewMatterRepository(db *gorm.DB) MatterRepository {
	return &matterRepository{db: db}
}

func (r *matterRepository) Create(ctx context.Context, matter *model.Matter) error {
	return GetDB(ctx, r.db).Create(matter).Error
}

func (r *matterRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Matter, error) {
	var matter model.Matter
	if err := GetDB(ctx, r.db).First(&matter, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &matter, nil
}

func (r *matterRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Matter, error) {
	var matters []model.Matter
	err := GetDB(ctx, r.db).
		Where("account_id = ?", accountID).
		Order("title ASC").
		Find(&matters).Error
	if err != nil {
		return nil, err
	}
	return matters, nil
}

func (r *matterRepository) Update(ctx context.Context, matter *model.Matter) error {
	return GetDB(ctx, r.db).Save(matter).Error
}
