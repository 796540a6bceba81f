package reports

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"github.com/shopspring/decimal"
)

type MonthlySummary struct {
	AccountBookId int                    `json:"account_book_id"`
	CycleStartDay int                    `json:"cycle_start_day"`
	Periods       []MonthlyPeriodSummary `json:"periods"`
}

type MonthlyPeriodSummary struct {
	Year        int                    `json:"year"`
	Month       int                    `json:"month"`
	Type        models.TransactionType `json:"type"`
	TotalAmount decimal.Decimal        `json:"total_amount"`
	Count       int                    `json:"count"`
	PeriodStart models.DateOnly        `json:"period_start"`
	PeriodEnd   models.DateOnly        `json:"period_end"`
}

type periodKey struct {
	year  int
	month time.Month
	kind  models.TransactionType
}

type periodTotal struct {
	total decimal.Decimal
	count int
}

// GetMonthlySummary groups a book's transactions into accounting months and
// emits one row per (year, month, type) bucket. Rows are scanned raw and
// bucketed here rather than in SQL so the cycle start day mapping lives in
// exactly one place, models.AccountingPeriod. Fixed point accumulation
// keeps the totals independent of row order.
func GetMonthlySummary(ctx context.Context, bookId int, fromDate models.DateOnly, toDate models.DateOnly) (*MonthlySummary, error) {
	book, err := models.GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}

	from, to := reportWindow(fromDate, toDate)

	db := config.GetDB()
	query := `
		SELECT
			transaction_date,
			type,
			amount
		FROM transactions
		WHERE
			account_book_id = ?
			AND transaction_date >= ?
			AND transaction_date <= ?;
	`
	rows, err := db.WithContext(ctx).Raw(query, book.ID, from, to).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[periodKey]*periodTotal)
	for rows.Next() {
		var transactionDate time.Time
		var transactionType models.TransactionType
		var amount decimal.Decimal

		if err := rows.Scan(&transactionDate, &transactionType, &amount); err != nil {
			return nil, err
		}

		year, month := models.AccountingPeriod(transactionDate, book.CycleStartDay)
		key := periodKey{year: year, month: month, kind: transactionType}
		bucket, ok := totals[key]
		if !ok {
			bucket = &periodTotal{}
			totals[key] = bucket
		}
		bucket.total = bucket.total.Add(amount)
		bucket.count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	keys := make([]periodKey, 0, len(totals))
	for key := range totals {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].year != keys[j].year {
			return keys[i].year < keys[j].year
		}
		if keys[i].month != keys[j].month {
			return keys[i].month < keys[j].month
		}
		return keys[i].kind < keys[j].kind
	})

	periods := make([]MonthlyPeriodSummary, 0, len(keys))
	for _, key := range keys {
		bucket := totals[key]
		start, end := models.PeriodBounds(key.year, key.month, book.CycleStartDay)
		periods = append(periods, MonthlyPeriodSummary{
			Year:        key.year,
			Month:       int(key.month),
			Type:        key.kind,
			TotalAmount: bucket.total.Round(2),
			Count:       bucket.count,
			PeriodStart: models.DateOnly(start),
			PeriodEnd:   models.DateOnly(end.AddDate(0, 0, -1)),
		})
	}

	return &MonthlySummary{
		AccountBookId: book.ID,
		CycleStartDay: book.CycleStartDay,
		Periods:       periods,
	}, nil
}

// reportWindow widens unset bounds to the whole DATE range so report
// queries stay a single static statement.
func reportWindow(fromDate models.DateOnly, toDate models.DateOnly) (time.Time, time.Time) {
	from := fromDate.Time()
	if fromDate.IsZero() {
		from = time.Date(1000, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	to := toDate.Time()
	if toDate.IsZero() {
		to = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	return from, to
}
