package repository

import (
	"context"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	List(ctx context.Context, includeArchived bool, search string, page, limit int) ([]model.Account, int64, error)
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
	Update(ctx context.Context, account *model.Account) error
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	return GetDB(ctx, r.db).Create(account).Error
}

func (r *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	if err := GetDB(ctx, r.db).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context, includeArchived bool, search string, page, limit int) ([]model.Account, int64, error) {
	var accounts []model.Account
	var total int64

	db := GetDB(ctx, r.db)
	scope := func() *gorm.DB {
		q := db.Model(&model.Account{})
		if !includeArchived {
			q = q.Where("is_archived = ?", false)
		}
		if search != "" {
			q = q.Where("title LIKE ?", "%"+search+"%")
		}
		return q
	}

	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := scope().Order("title ASC").Offset(offset).Limit(limit).Find(&accounts).Error; err != nil {
		return nil, 0, err
	}

	return accounts, total, nil
}

func (r *accountRepository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	return GetDB(ctx, r.db).Model(&model.Account{}).
		Where("id = ?", id).
		Update("is_archived", archived).Error
}

func (r *accountRepository) Update(ctx context.Context, account *model.Account) error {
	return GetDB(ctx, r.db).Save(account).Error
}
