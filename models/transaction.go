package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/shopspring/decimal"
)

const (
	// Amount bounds follow the DECIMAL(13,2) column: anything the column
	// cannot hold exactly is rejected before it reaches the database.
	maxAmountIntegerDigits = 11

	defaultTransactionPageSize = 20
	maxTransactionPageSize     = 100
	maxTagCount                = 20
	maxTagLength               = 50
)

// Transaction is a single ledger entry: an amount of money moving in or out
// of a book on a calendar date, filed under exactly one category of the
// same type.
type Transaction struct {
	ID              int             `gorm:"primary_key" json:"id"`
	AccountBookId   int             `gorm:"index;not null" json:"account_book_id"`
	CategoryId      int             `gorm:"index;not null" json:"category_id"`
	Type            TransactionType `gorm:"size:10;not null" json:"type"`
	Amount          decimal.Decimal `gorm:"type:decimal(13,2);not null" json:"amount"`
	TransactionDate DateOnly        `gorm:"type:date;not null;index" json:"transaction_date"`
	Description     string          `gorm:"size:500" json:"description"`
	Tags            TagList         `gorm:"size:500" json:"tags"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTransaction struct {
	AccountBookId   int             `json:"account_book_id" binding:"omitempty"`
	CategoryId      int             `json:"category_id" binding:"required"`
	Type            TransactionType `json:"type" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate DateOnly        `json:"transaction_date" binding:"required"`
	Description     string          `json:"description" binding:"omitempty,max=500"`
	Tags            TagList         `json:"tags" binding:"omitempty,max=20,dive,min=1,max=50"`
}

// validate runs the ledger's admission checks against a book that the
// caller has already resolved. The order is fixed: category membership,
// category/transaction type agreement, amount, date, then the free text
// fields, so a request broken in several ways always reports the same
// error. currentCategoryId is the category the record references today
// (zero on create): a deactivated category accepts no new transactions,
// but an amend may keep the one it already has.
func (input *NewTransaction) validate(ctx context.Context, bookId int, currentCategoryId int) error {
	if !input.Type.IsValid() {
		return utils.NewInvalidArgumentError("%s is not a valid transaction type", input.Type)
	}

	category, err := utils.FetchBookModel[Category](ctx, bookId, input.CategoryId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return utils.NewNotFoundError("category not found in this account book")
		}
		return err
	}
	if !utils.DereferencePtr(category.IsActive, false) && category.ID != currentCategoryId {
		return utils.NewNotFoundError("category not found in this account book")
	}
	if category.Type != input.Type {
		return utils.NewTypeMismatchError(
			"transaction type %s does not match category type %s", input.Type, category.Type)
	}

	if err := validateAmount(input.Amount); err != nil {
		return err
	}

	if input.TransactionDate.IsZero() {
		return utils.NewInvalidArgumentError("transaction date is required")
	}

	if len(input.Description) > 500 {
		return utils.NewInvalidArgumentError("description must not exceed 500 characters")
	}
	if len(input.Tags) > maxTagCount {
		return utils.NewInvalidArgumentError("a transaction can carry at most %d tags", maxTagCount)
	}
	for i, tag := range input.Tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return utils.NewInvalidArgumentError("tags must not be empty")
		}
		if len(tag) > maxTagLength {
			return utils.NewInvalidArgumentError("tags must not exceed %d characters", maxTagLength)
		}
		if strings.Contains(tag, ",") {
			return utils.NewInvalidArgumentError("tags must not contain commas")
		}
		input.Tags[i] = tag
	}
	if len(input.Tags.Joined()) > 500 {
		return utils.NewInvalidArgumentError("tags must not exceed 500 characters in total")
	}
	return nil
}

// validateAmount admits only amounts the ledger can store exactly: strictly
// positive and representable with two decimal places.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return utils.NewInvalidAmountError("amount must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return utils.NewInvalidAmountError("amount must not have more than two decimal places")
	}
	if amount.GreaterThanOrEqual(decimal.New(1, maxAmountIntegerDigits)) {
		return utils.NewInvalidAmountError("amount is too large")
	}
	return nil
}

func CreateTransaction(ctx context.Context, bookId int, input *NewTransaction) (*Transaction, error) {
	book, err := GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	if err := input.validate(ctx, book.ID, 0); err != nil {
		return nil, err
	}

	transaction := Transaction{
		AccountBookId:   book.ID,
		CategoryId:      input.CategoryId,
		Type:            input.Type,
		Amount:          input.Amount,
		TransactionDate: input.TransactionDate,
		Description:     input.Description,
		Tags:            input.Tags,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&transaction).Error; err != nil {
		return nil, err
	}
	return &transaction, nil
}

func GetTransaction(ctx context.Context, bookId int, id int) (*Transaction, error) {
	book, err := GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}
	transaction, err := utils.FetchBookModel[Transaction](ctx, book.ID, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewNotFoundError("transaction not found")
		}
		return nil, err
	}
	return transaction, nil
}

// UpdateTransaction replaces every mutable field of an entry after running
// the same admission checks as a create. Entries never move between books;
// an input naming a different book is rejected outright.
func UpdateTransaction(ctx context.Context, bookId int, id int, input *NewTransaction) (*Transaction, error) {
	transaction, err := GetTransaction(ctx, bookId, id)
	if err != nil {
		return nil, err
	}

	if input.AccountBookId != 0 && input.AccountBookId != transaction.AccountBookId {
		return nil, utils.NewConflictError("a transaction cannot move to another account book")
	}

	if err := input.validate(ctx, transaction.AccountBookId, transaction.CategoryId); err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&transaction).Updates(map[string]interface{}{
		"category_id":      input.CategoryId,
		"type":             input.Type,
		"amount":           input.Amount,
		"transaction_date": input.TransactionDate,
		"description":      input.Description,
		"tags":             input.Tags,
	}).Error
	if err != nil {
		return nil, err
	}
	return transaction, nil
}

// DeleteTransaction removes an entry for good, together with any receipt
// rows hanging off it. Stored receipt objects are cleaned up by the caller
// once the rows are gone.
func DeleteTransaction(ctx context.Context, bookId int, id int) ([]*TransactionAttachment, error) {
	transaction, err := GetTransaction(ctx, bookId, id)
	if err != nil {
		return nil, err
	}

	var attachments []*TransactionAttachment
	db := config.GetDB()
	err = db.WithContext(ctx).
		Where("transaction_id = ?", transaction.ID).
		Find(&attachments).Error
	if err != nil {
		return nil, err
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	if err := tx.Where("transaction_id = ?", transaction.ID).Delete(&TransactionAttachment{}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Delete(&Transaction{}, transaction.ID).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return attachments, nil
}

type TransactionFilter struct {
	CategoryId int
	Type       TransactionType
	From       DateOnly
	To         DateOnly
	Page       int
	PageSize   int
}

// limits normalizes the requested page and page size: pages start at 1,
// the size defaults to 20 and is capped at 100.
func (f TransactionFilter) limits() (int, int) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 {
		pageSize = defaultTransactionPageSize
	}
	if pageSize > maxTransactionPageSize {
		pageSize = maxTransactionPageSize
	}
	return page, pageSize
}

type TransactionPage struct {
	Transactions []*Transaction `json:"transactions"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
	HasNext      bool           `json:"has_next"`
}

// PaginateTransactions lists a book's entries newest first. It fetches one
// row beyond the page to learn whether another page exists without a second
// count query.
func PaginateTransactions(ctx context.Context, bookId int, filter TransactionFilter) (*TransactionPage, error) {
	book, err := GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	page, pageSize := filter.limits()

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("account_book_id = ?", book.ID)
	if filter.CategoryId > 0 {
		dbCtx = dbCtx.Where("category_id = ?", filter.CategoryId)
	}
	if filter.Type != "" {
		if !filter.Type.IsValid() {
			return nil, utils.NewInvalidArgumentError("%s is not a valid transaction type", filter.Type)
		}
		dbCtx = dbCtx.Where("type = ?", filter.Type)
	}
	if !filter.From.IsZero() {
		dbCtx = dbCtx.Where("transaction_date >= ?", filter.From.Time())
	}
	if !filter.To.IsZero() {
		dbCtx = dbCtx.Where("transaction_date <= ?", filter.To.Time())
	}

	var transactions []*Transaction
	err = dbCtx.
		Order("transaction_date DESC, created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize + 1).
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}

	hasNext := len(transactions) > pageSize
	if hasNext {
		transactions = transactions[:pageSize]
	}
	return &TransactionPage{
		Transactions: transactions,
		Page:         page,
		PageSize:     pageSize,
		HasNext:      hasNext,
	}, nil
}
