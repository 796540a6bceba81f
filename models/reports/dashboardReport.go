package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"github.com/shopspring/decimal"
)

const recentTransactionCount = 5

type Dashboard struct {
	AccountBook        *models.AccountBook   `json:"account_book"`
	Year               int                   `json:"year"`
	Month              int                   `json:"month"`
	PeriodStart        models.DateOnly       `json:"period_start"`
	PeriodEnd          models.DateOnly       `json:"period_end"`
	TotalIncome        decimal.Decimal       `json:"total_income"`
	TotalExpense       decimal.Decimal       `json:"total_expense"`
	NetAmount          decimal.Decimal       `json:"net_amount"`
	TransactionCount   int                   `json:"transaction_count"`
	RecentTransactions []*models.Transaction `json:"recent_transactions"`
}

// GetDashboard summarizes the accounting month the book is in right now:
// income and expense totals for the running period plus the latest entries.
func GetDashboard(ctx context.Context, bookId int) (*Dashboard, error) {
	book, err := models.GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	year, month := models.AccountingPeriod(time.Now().UTC(), book.CycleStartDay)
	start, end := models.PeriodBounds(year, month, book.CycleStartDay)

	db := config.GetDB()
	query := `
		SELECT
			type,
			COUNT(id) AS transaction_count,
			SUM(amount) AS total_amount
		FROM transactions
		WHERE
			account_book_id = ?
			AND transaction_date >= ?
			AND transaction_date < ?
		GROUP BY
			type;
	`
	rows, err := db.WithContext(ctx).Raw(query, book.ID, start, end).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totalIncome, totalExpense decimal.Decimal
	var transactionCount int
	for rows.Next() {
		var transactionType models.TransactionType
		var count int
		var total decimal.Decimal

		if err := rows.Scan(&transactionType, &count, &total); err != nil {
			return nil, err
		}

		switch transactionType {
		case models.TransactionTypeIncome:
			totalIncome = total
		case models.TransactionTypeExpense:
			totalExpense = total
		}
		transactionCount += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var recent []*models.Transaction
	err = db.WithContext(ctx).
		Where("account_book_id = ?", book.ID).
		Order("transaction_date DESC, created_at DESC, id DESC").
		Limit(recentTransactionCount).
		Find(&recent).Error
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		AccountBook:        book,
		Year:               year,
		Month:              int(month),
		PeriodStart:        models.DateOnly(start),
		PeriodEnd:          models.DateOnly(end.AddDate(0, 0, -1)),
		TotalIncome:        totalIncome.Round(2),
		TotalExpense:       totalExpense.Round(2),
		NetAmount:          totalIncome.Sub(totalExpense).Round(2),
		TransactionCount:   transactionCount,
		RecentTransactions: recent,
	}, nil
}
