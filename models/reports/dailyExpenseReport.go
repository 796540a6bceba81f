package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"github.com/shopspring/decimal"
)

const defaultDailyExpenseDays = 30

type DailyExpenseSummary struct {
	AccountBookId int                  `json:"account_book_id"`
	Days          []DailyExpenseDetail `json:"days"`
}

type DailyExpenseDetail struct {
	Date        models.DateOnly `json:"date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Count       int             `json:"count"`
}

// GetDailyExpenseSummary returns per day expense totals for the trailing
// window ending today, zero filled so charts get one point per day whether
// or not anything was spent.
func GetDailyExpenseSummary(ctx context.Context, bookId int, days int) (*DailyExpenseSummary, error) {
	book, err := models.GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	if days <= 0 {
		days = defaultDailyExpenseDays
	}
	if days > 366 {
		days = 366
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	windowStart := today.AddDate(0, 0, -(days - 1))

	db := config.GetDB()
	query := `
		SELECT
			transaction_date,
			COUNT(id) AS transaction_count,
			SUM(amount) AS total_amount
		FROM transactions
		WHERE
			account_book_id = ?
			AND type = ?
			AND transaction_date >= ?
			AND transaction_date <= ?
		GROUP BY
			transaction_date;
	`
	rows, err := db.WithContext(ctx).Raw(query,
		book.ID, models.TransactionTypeExpense, windowStart, today,
	).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type dayTotal struct {
		total decimal.Decimal
		count int
	}
	byDay := make(map[string]dayTotal)
	for rows.Next() {
		var transactionDate time.Time
		var count int
		var total decimal.Decimal

		if err := rows.Scan(&transactionDate, &count, &total); err != nil {
			return nil, err
		}
		byDay[transactionDate.Format("2006-01-02")] = dayTotal{total: total, count: count}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	details := make([]DailyExpenseDetail, 0, days)
	for day := windowStart; !day.After(today); day = day.AddDate(0, 0, 1) {
		bucket := byDay[day.Format("2006-01-02")]
		details = append(details, DailyExpenseDetail{
			Date:        models.DateOnly(day),
			TotalAmount: bucket.total.Round(2),
			Count:       bucket.count,
		})
	}

	return &DailyExpenseSummary{
		AccountBookId: book.ID,
		Days:          details,
	}, nil
}
