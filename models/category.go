package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
)

// Category labels transactions inside one book. A category is either an
// income or an expense bucket, and the two sides never mix: a transaction
// must carry the same type as its category.
type Category struct {
	ID            int             `gorm:"primary_key" json:"id"`
	AccountBookId int             `gorm:"index;not null" json:"account_book_id"`
	Name          string          `gorm:"size:50;not null" json:"name"`
	Type          TransactionType `gorm:"size:10;not null" json:"type"`
	Icon          string          `gorm:"size:50" json:"icon"`
	Color         string          `gorm:"size:20" json:"color"`
	SortOrder     int             `gorm:"not null;default:0" json:"sort_order"`
	IsActive      *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCategory struct {
	Name  string          `json:"name" binding:"required,max=50"`
	Type  TransactionType `json:"type" binding:"required"`
	Icon  string          `json:"icon" binding:"omitempty,max=50"`
	Color string          `json:"color" binding:"omitempty,max=20"`
}

func (input *NewCategory) validate(ctx context.Context, bookId int, id int) error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return utils.NewInvalidArgumentError("category name is required")
	}
	if len(input.Name) > 50 {
		return utils.NewInvalidArgumentError("category name must not exceed 50 characters")
	}
	if !input.Type.IsValid() {
		return utils.NewInvalidArgumentError("%s is not a valid transaction type", input.Type)
	}
	if len(input.Icon) > 50 {
		return utils.NewInvalidArgumentError("icon must not exceed 50 characters")
	}
	if len(input.Color) > 20 {
		return utils.NewInvalidArgumentError("color must not exceed 20 characters")
	}
	return utils.ValidateUniqueInBook[Category](ctx, bookId, "name", input.Name, id)
}

func CreateCategory(ctx context.Context, bookId int, input *NewCategory) (*Category, error) {
	book, err := GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	if err := input.validate(ctx, book.ID, 0); err != nil {
		return nil, err
	}

	// New categories sort after every existing one in the book, including
	// deactivated ones, so a revived category never collides.
	var maxOrder int
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&Category{}).
		Where("account_book_id = ?", book.ID).
		Select("COALESCE(MAX(sort_order), 0)").
		Scan(&maxOrder).Error
	if err != nil {
		return nil, err
	}

	category := Category{
		AccountBookId: book.ID,
		Name:          input.Name,
		Type:          input.Type,
		Icon:          input.Icon,
		Color:         input.Color,
		SortOrder:     maxOrder + 1,
		IsActive:      utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func GetCategories(ctx context.Context, bookId int) ([]*Category, error) {
	book, err := GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	var categories []*Category
	db := config.GetDB()
	err = db.WithContext(ctx).
		Where("account_book_id = ? AND is_active = 1", book.ID).
		Order("sort_order ASC, name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func GetCategory(ctx context.Context, bookId int, id int) (*Category, error) {
	book, err := GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}
	category, err := utils.FetchBookModel[Category](ctx, book.ID, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewNotFoundError("category not found")
		}
		return nil, err
	}
	return category, nil
}

func UpdateCategory(ctx context.Context, bookId int, id int, input *NewCategory) (*Category, error) {
	category, err := GetCategory(ctx, bookId, id)
	if err != nil {
		return nil, err
	}

	if err := input.validate(ctx, category.AccountBookId, category.ID); err != nil {
		return nil, err
	}

	db := config.GetDB()

	// The type of a category is frozen once transactions reference it,
	// otherwise amounts already aggregated under one side of the ledger
	// would silently flip to the other.
	if input.Type != category.Type {
		var count int64
		err = db.WithContext(ctx).Model(&Transaction{}).
			Where("category_id = ?", category.ID).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, utils.NewConflictError("category type cannot change once transactions reference it")
		}
	}

	err = db.WithContext(ctx).Model(&category).Updates(map[string]interface{}{
		"name":  input.Name,
		"type":  input.Type,
		"icon":  input.Icon,
		"color": input.Color,
	}).Error
	if err != nil {
		return nil, err
	}
	return category, nil
}

// DeactivateCategory hides a category from listings and from new
// transactions. Historical transactions keep pointing at it and reports
// keep aggregating it.
func DeactivateCategory(ctx context.Context, bookId int, id int) (*Category, error) {
	category, err := GetCategory(ctx, bookId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&category).Updates(map[string]interface{}{
		"is_active": false,
	}).Error
	if err != nil {
		return nil, err
	}
	return category, nil
}

// ReorderCategories assigns sort orders 1..n to the book's active
// categories following the order of ids. The id set must match the active
// set exactly, and the whole reassignment happens in one transaction.
func ReorderCategories(ctx context.Context, bookId int, ids []int) ([]*Category, error) {
	book, err := GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	if len(ids) != len(utils.UniqueSlice(ids)) {
		return nil, utils.NewInvalidArgumentError("category ids must not repeat")
	}

	var active []*Category
	db := config.GetDB()
	err = db.WithContext(ctx).
		Where("account_book_id = ? AND is_active = 1", book.ID).
		Find(&active).Error
	if err != nil {
		return nil, err
	}
	if len(ids) != len(active) {
		return nil, utils.NewInvalidArgumentError("reorder must list every active category exactly once")
	}
	known := make(map[int]bool, len(active))
	for _, category := range active {
		known[category.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return nil, utils.NewInvalidArgumentError("category %d is not an active category of this book", id)
		}
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	for position, id := range ids {
		err = tx.Model(&Category{}).
			Where("id = ?", id).
			Update("sort_order", position+1).Error
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return GetCategories(ctx, bookId)
}
