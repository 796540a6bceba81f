package utils

import (
	"context"
	"reflect"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
)

// check if id exists inside the given book, return RecordNotFound error
func ValidateBookResourceId[T any](ctx context.Context, bookId int, id interface{}) error {

	count, err := BookResourceCountWhere[T](ctx, bookId, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return ErrorRecordNotFound
	}

	return nil
}

// ValidateUniqueInBook reports Conflict when another active row of T inside
// the book already carries the value in the given column. Deactivated rows do
// not hold their value: soft deleting a row releases its name for reuse.
// exceptId skips the row being updated (zero value for create).
func ValidateUniqueInBook[T any](ctx context.Context, bookId int, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if reflect.ValueOf(exceptId).IsZero() {
		count, err = BookResourceCountWhere[T](ctx, bookId, column+" = ? AND is_active = 1", value)
	} else {
		count, err = BookResourceCountWhere[T](ctx, bookId, column+" = ? AND is_active = 1 AND NOT id = ?", value, exceptId)
	}

	if err != nil {
		return err
	}
	if count > 0 {
		return NewConflictError("duplicate %s", column)
	}
	return nil
}

// count records, using WHERE account_book_id = ? AND $condition
func BookResourceCountWhere[T any](ctx context.Context, bookId int, condition string, value ...interface{}) (int64, error) {
	var model T

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Model(&model)
	var count int64
	if bookId > 0 {
		dbCtx.Where("account_book_id = ?", bookId)
	}
	dbCtx.Where(condition, value...)
	if err := dbCtx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
