package models

import (
	"context"
	"io"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const maxImportRows = 5000

var importHeader = []string{"Date", "Type", "Category", "Amount", "Description", "Tags"}

type TransactionImportResult struct {
	AccountBookId int `json:"account_book_id"`
	ImportedCount int `json:"imported_count"`
}

func importCell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// ImportTransactionsFromXlsx bulk loads ledger entries from a spreadsheet,
// typically a backfill exported from another tool. The sheet must carry the
// Date, Type, Category, Amount, Description, Tags header; categories are
// matched by name against the book's active set. The import is all or
// nothing: one bad row rejects the whole file with its row number.
func ImportTransactionsFromXlsx(ctx context.Context, bookId int, r io.Reader) (*TransactionImportResult, error) {
	book, err := GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, utils.NewInvalidArgumentError("file is not a readable xlsx workbook")
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, utils.NewInvalidArgumentError("workbook has no Sheet1")
	}
	if len(rows) == 0 {
		return nil, utils.NewInvalidArgumentError("workbook is empty")
	}
	if len(rows)-1 > maxImportRows {
		return nil, utils.NewInvalidArgumentError("import must not exceed %d rows", maxImportRows)
	}
	for i, want := range importHeader {
		if !strings.EqualFold(importCell(rows[0], i), want) {
			return nil, utils.NewInvalidArgumentError(
				"header row must be %s", strings.Join(importHeader, ", "))
		}
	}

	categories, err := GetCategories(ctx, book.ID)
	if err != nil {
		return nil, err
	}
	categoryByName := make(map[string]*Category, len(categories))
	for _, category := range categories {
		categoryByName[strings.ToLower(category.Name)] = category
	}

	var transactions []*Transaction
	for idx, row := range rows[1:] {
		rowNo := idx + 2

		if len(row) == 0 || strings.Join(row, "") == "" {
			continue
		}

		transactionDate, err := time.ParseInLocation("2006-01-02", importCell(row, 0), time.UTC)
		if err != nil {
			return nil, utils.NewInvalidArgumentError("row %d: date must be YYYY-MM-DD", rowNo)
		}

		transactionType, err := ParseTransactionType(strings.ToLower(importCell(row, 1)))
		if err != nil {
			return nil, utils.NewInvalidArgumentError("row %d: type must be income or expense", rowNo)
		}

		categoryName := importCell(row, 2)
		category, ok := categoryByName[strings.ToLower(categoryName)]
		if !ok {
			return nil, utils.NewNotFoundError("row %d: category %s not found in this account book", rowNo, categoryName)
		}
		if category.Type != transactionType {
			return nil, utils.NewTypeMismatchError(
				"row %d: transaction type %s does not match category type %s", rowNo, transactionType, category.Type)
		}

		amount, err := decimal.NewFromString(importCell(row, 3))
		if err != nil {
			return nil, utils.NewInvalidAmountError("row %d: amount is not a number", rowNo)
		}
		if err := validateAmount(amount); err != nil {
			return nil, utils.NewInvalidAmountError("row %d: %s", rowNo, utils.UserMessage(err))
		}

		description := importCell(row, 4)
		if len(description) > 500 {
			return nil, utils.NewInvalidArgumentError("row %d: description must not exceed 500 characters", rowNo)
		}

		var tags TagList
		for _, tag := range strings.Split(importCell(row, 5), ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if len(tag) > maxTagLength {
				return nil, utils.NewInvalidArgumentError("row %d: tags must not exceed %d characters", rowNo, maxTagLength)
			}
			tags = append(tags, tag)
		}
		if len(tags) > maxTagCount {
			return nil, utils.NewInvalidArgumentError("row %d: a transaction can carry at most %d tags", rowNo, maxTagCount)
		}

		transactions = append(transactions, &Transaction{
			AccountBookId:   book.ID,
			CategoryId:      category.ID,
			Type:            transactionType,
			Amount:          amount,
			TransactionDate: DateOnly(transactionDate),
			Description:     description,
			Tags:            tags,
		})
	}

	if len(transactions) == 0 {
		return nil, utils.NewInvalidArgumentError("workbook has no transaction rows")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	for _, transaction := range transactions {
		if err := tx.Create(transaction).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return &TransactionImportResult{
		AccountBookId: book.ID,
		ImportedCount: len(transactions),
	}, nil
}
