package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"gorm.io/gorm"
)

// AccountBook is an isolated ledger owned by exactly one user. Every
// category and transaction hangs off one book, and the book's cycle start
// day decides which accounting month a calendar date falls into.
type AccountBook struct {
	ID            int       `gorm:"primary_key" json:"id"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	Name          string    `gorm:"size:100;not null" json:"name"`
	Description   string    `gorm:"size:500" json:"description"`
	Currency      string    `gorm:"size:3;not null" json:"currency"`
	CycleStartDay int       `gorm:"not null;default:1" json:"cycle_start_day"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccountBook struct {
	Name          string `json:"name" binding:"required,max=100"`
	Description   string `json:"description" binding:"omitempty,max=500"`
	Currency      string `json:"currency" binding:"required,len=3"`
	CycleStartDay int    `json:"cycle_start_day" binding:"required,gte=1,lte=31"`
}

func (input *NewAccountBook) validate() error {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return utils.NewInvalidArgumentError("account book name is required")
	}
	if len(input.Name) > 100 {
		return utils.NewInvalidArgumentError("account book name must not exceed 100 characters")
	}
	if len(input.Description) > 500 {
		return utils.NewInvalidArgumentError("description must not exceed 500 characters")
	}
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(input.Currency) != 3 {
		return utils.NewInvalidArgumentError("currency must be a 3 letter code")
	}
	if input.CycleStartDay < 1 || input.CycleStartDay > 31 {
		return utils.NewInvalidArgumentError("cycle start day must be between 1 and 31")
	}
	return nil
}

// AccountingPeriod maps a calendar date to the accounting (year, month) it
// belongs to for a book whose monthly cycle starts on cycleStartDay. The
// period labelled (y, m) begins on day min(cycleStartDay, last day of m), so
// a date before its own month's start day belongs to the previous month's
// period.
func AccountingPeriod(date time.Time, cycleStartDay int) (int, time.Month) {
	start := clampDayToMonth(date.Year(), date.Month(), cycleStartDay)
	if date.Day() >= start {
		return date.Year(), date.Month()
	}
	prev := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	return prev.Year(), prev.Month()
}

// PeriodBounds returns the half open [start, end) date range covered by the
// accounting period (year, month). The end is the start of the following
// period, so consecutive periods tile the calendar with no gaps or overlaps.
func PeriodBounds(year int, month time.Month, cycleStartDay int) (time.Time, time.Time) {
	start := time.Date(year, month, clampDayToMonth(year, month, cycleStartDay), 0, 0, 0, 0, time.UTC)
	nextYear, nextMonth := year, month+1
	if nextMonth > time.December {
		nextYear, nextMonth = year+1, time.January
	}
	end := time.Date(nextYear, nextMonth, clampDayToMonth(nextYear, nextMonth, cycleStartDay), 0, 0, 0, 0, time.UTC)
	return start, end
}

func clampDayToMonth(year int, month time.Month, day int) int {
	last := daysInMonth(year, month)
	if day > last {
		return last
	}
	return day
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
}

func CreateAccountBook(ctx context.Context, input *NewAccountBook) (*AccountBook, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	book := AccountBook{
		UserId:        userId,
		Name:          input.Name,
		Description:   input.Description,
		Currency:      input.Currency,
		CycleStartDay: input.CycleStartDay,
		IsActive:      utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// GetAccountBook loads an active book and enforces the ownership boundary:
// a missing or deactivated book reads as not found, a book owned by someone
// else as forbidden. Every book scoped operation funnels through here.
func GetAccountBook(ctx context.Context, id int) (*AccountBook, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}

	var book AccountBook
	db := config.GetDB()
	result := db.WithContext(ctx).Where("id = ? AND is_active = 1", id).First(&book)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("account book not found")
		}
		return nil, result.Error
	}
	if book.UserId != userId {
		return nil, utils.NewForbiddenError("account book belongs to another user")
	}
	return &book, nil
}

func GetAccountBooks(ctx context.Context) ([]*AccountBook, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}

	var books []*AccountBook
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_active = 1", userId).
		Order("created_at ASC, id ASC").
		Find(&books).Error
	if err != nil {
		return nil, err
	}
	return books, nil
}

func UpdateAccountBook(ctx context.Context, id int, input *NewAccountBook) (*AccountBook, error) {
	book, err := GetAccountBook(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&book).Updates(map[string]interface{}{
		"name":            input.Name,
		"description":     input.Description,
		"currency":        input.Currency,
		"cycle_start_day": input.CycleStartDay,
	}).Error
	if err != nil {
		return nil, err
	}
	return book, nil
}

// DeactivateAccountBook soft deletes a book. Its rows stay in place so a
// hard delete or an audit can still see them, but every read path filters
// on is_active and treats the book as gone.
func DeactivateAccountBook(ctx context.Context, id int) (*AccountBook, error) {
	book, err := GetAccountBook(ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&book).Updates(map[string]interface{}{
		"is_active": false,
	}).Error
	if err != nil {
		return nil, err
	}
	return book, nil
}

// HardDeleteAccountBook removes a book and everything beneath it in one
// transaction. The book may already be deactivated, so ownership is checked
// directly instead of through GetAccountBook.
func HardDeleteAccountBook(ctx context.Context, id int) error {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}

	var book AccountBook
	db := config.GetDB()
	result := db.WithContext(ctx).Where("id = ?", id).First(&book)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return utils.NewNotFoundError("account book not found")
		}
		return result.Error
	}
	if book.UserId != userId {
		return utils.NewForbiddenError("account book belongs to another user")
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := tx.Where("account_book_id = ?", id).Delete(&TransactionAttachment{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Where("account_book_id = ?", id).Delete(&Transaction{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Where("account_book_id = ?", id).Delete(&Category{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Model(&User{}).
		Where("id = ? AND last_selected_book_id = ?", userId, id).
		Update("last_selected_book_id", 0).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&AccountBook{}, id).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// SelectAccountBook remembers the book a user last worked in so clients can
// reopen it on the next login.
func SelectAccountBook(ctx context.Context, id int) (*AccountBook, error) {
	book, err := GetAccountBook(ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&User{}).
		Where("id = ?", book.UserId).
		Update("last_selected_book_id", book.ID).Error
	if err != nil {
		return nil, err
	}
	return book, nil
}
