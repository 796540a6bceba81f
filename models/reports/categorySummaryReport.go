package reports

import (
	"context"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"github.com/shopspring/decimal"
)

type CategorySummary struct {
	AccountBookId int                     `json:"account_book_id"`
	Categories    []CategorySummaryDetail `json:"categories"`
}

type CategorySummaryDetail struct {
	CategoryId   int                    `json:"category_id"`
	CategoryName string                 `json:"category_name"`
	Type         models.TransactionType `json:"type"`
	IsActive     bool                   `json:"is_active"`
	Count        int                    `json:"count"`
	TotalAmount  decimal.Decimal        `json:"total_amount"`
	// AverageAmount is null when the category has no transactions in the
	// window, so "no data" never reads as an average of zero.
	AverageAmount *decimal.Decimal `json:"average_amount"`
}

// GetCategorySummary aggregates a book's transactions per category. Every
// category of the book appears, including deactivated ones and ones nothing
// references yet; the date bounds apply to the joined transactions only.
func GetCategorySummary(ctx context.Context, bookId int, fromDate models.DateOnly, toDate models.DateOnly) (*CategorySummary, error) {
	book, err := models.GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	from, to := reportWindow(fromDate, toDate)

	db := config.GetDB()
	query := `
		SELECT
			c.id AS category_id,
			c.name AS category_name,
			c.type AS category_type,
			c.is_active AS is_active,
			COUNT(t.id) AS transaction_count,
			COALESCE(SUM(t.amount), 0) AS total_amount
		FROM categories AS c
		LEFT JOIN transactions AS t
			ON t.category_id = c.id
			AND t.transaction_date >= ?
			AND t.transaction_date <= ?
		WHERE
			c.account_book_id = ?
		GROUP BY
			c.id,
			c.name,
			c.type,
			c.is_active,
			c.sort_order
		ORDER BY
			c.sort_order,
			c.name;
	`
	rows, err := db.WithContext(ctx).Raw(query, from, to, book.ID).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []CategorySummaryDetail
	for rows.Next() {
		var categoryId int
		var categoryName string
		var categoryType models.TransactionType
		var isActive bool
		var count int
		var total decimal.Decimal

		if err := rows.Scan(&categoryId, &categoryName, &categoryType, &isActive, &count, &total); err != nil {
			return nil, err
		}

		detail := CategorySummaryDetail{
			CategoryId:   categoryId,
			CategoryName: categoryName,
			Type:         categoryType,
			IsActive:     isActive,
			Count:        count,
			TotalAmount:  total.Round(2),
		}
		if count > 0 {
			average := total.DivRound(decimal.NewFromInt(int64(count)), 2)
			detail.AverageAmount = &average
		}
		details = append(details, detail)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &CategorySummary{
		AccountBookId: book.ID,
		Categories:    details,
	}, nil
}
