package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"bitbucket.org/mmdatafocus/moneybook_backend/models/reports"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestLedgerPostingAndMonthlySummary(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "moneybook_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	// 1) Register, verify and log in.
	user, verifyToken, err := models.RegisterUser(ctx, &models.NewUser{
		Email:    "owner@test.local",
		Password: "super-secret-1",
	})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if _, _, err := models.RegisterUser(ctx, &models.NewUser{
		Email:    "owner@test.local",
		Password: "another-secret",
	}); utils.KindOf(err) != utils.ErrorKindConflict {
		t.Fatalf("expected duplicate registration to conflict, got %v", err)
	}
	if _, _, err := models.Login(ctx, "owner@test.local", "super-secret-1"); utils.KindOf(err) != utils.ErrorKindForbidden {
		t.Fatalf("expected login before verification to be forbidden, got %v", err)
	}
	if _, err := models.VerifyEmail(ctx, verifyToken); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	session, _, err := models.Login(ctx, "owner@test.local", "super-secret-1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	ctx = utils.SetUserIdInContext(ctx, user.ID)
	ctx = utils.SetTokenInContext(ctx, session.Token)

	// 2) A book whose accounting month runs from the 25th.
	book, err := models.CreateAccountBook(ctx, &models.NewAccountBook{
		Name:          "Household",
		Currency:      "usd",
		CycleStartDay: 25,
	})
	if err != nil {
		t.Fatalf("CreateAccountBook: %v", err)
	}
	if book.Currency != "USD" {
		t.Fatalf("expected currency to be upper cased, got %q", book.Currency)
	}

	salary, err := models.CreateCategory(ctx, book.ID, &models.NewCategory{Name: "Salary", Type: models.TransactionTypeIncome})
	if err != nil {
		t.Fatalf("CreateCategory(Salary): %v", err)
	}
	food, err := models.CreateCategory(ctx, book.ID, &models.NewCategory{Name: "Food", Type: models.TransactionTypeExpense})
	if err != nil {
		t.Fatalf("CreateCategory(Food): %v", err)
	}
	if _, err := models.CreateCategory(ctx, book.ID, &models.NewCategory{Name: "Travel", Type: models.TransactionTypeExpense}); err != nil {
		t.Fatalf("CreateCategory(Travel): %v", err)
	}

	// 3) Post two salaries. Jan 25 opens the January period; Feb 10 is
	// before the cycle day, so it folds back into the same period.
	if _, err := models.CreateTransaction(ctx, book.ID, &models.NewTransaction{
		CategoryId:      salary.ID,
		Type:            models.TransactionTypeIncome,
		Amount:          decimal.RequireFromString("5000.00"),
		TransactionDate: models.NewDateOnly(2026, time.January, 25),
	}); err != nil {
		t.Fatalf("CreateTransaction(salary 1): %v", err)
	}
	if _, err := models.CreateTransaction(ctx, book.ID, &models.NewTransaction{
		CategoryId:      salary.ID,
		Type:            models.TransactionTypeIncome,
		Amount:          decimal.RequireFromString("3000.00"),
		TransactionDate: models.NewDateOnly(2026, time.February, 10),
	}); err != nil {
		t.Fatalf("CreateTransaction(salary 2): %v", err)
	}
	groceries, err := models.CreateTransaction(ctx, book.ID, &models.NewTransaction{
		CategoryId:      food.ID,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("40.00"),
		TransactionDate: models.NewDateOnly(2026, time.February, 5),
		Description:     "groceries",
		Tags:            models.TagList{"food", "weekly"},
	})
	if err != nil {
		t.Fatalf("CreateTransaction(groceries): %v", err)
	}
	if _, err := models.CreateTransaction(ctx, book.ID, &models.NewTransaction{
		CategoryId:      food.ID,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("4.50"),
		TransactionDate: models.NewDateOnly(2026, time.February, 25),
		Description:     "coffee",
	}); err != nil {
		t.Fatalf("CreateTransaction(coffee): %v", err)
	}

	// 4) Rejections: wrong category type, unknown category, sub cent amount.
	if _, err := models.CreateTransaction(ctx, book.ID, &models.NewTransaction{
		CategoryId:      salary.ID,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("10.00"),
		TransactionDate: models.NewDateOnly(2026, time.February, 1),
	}); utils.KindOf(err) != utils.ErrorKindTypeMismatch {
		t.Fatalf("expected a type mismatch, got %v", err)
	}
	if _, err := models.CreateTransaction(ctx, book.ID, &models.NewTransaction{
		CategoryId:      999999,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("10.00"),
		TransactionDate: models.NewDateOnly(2026, time.February, 1),
	}); utils.KindOf(err) != utils.ErrorKindNotFound {
		t.Fatalf("expected an unknown category to be not found, got %v", err)
	}
	if _, err := models.CreateTransaction(ctx, book.ID, &models.NewTransaction{
		CategoryId:      food.ID,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("10.001"),
		TransactionDate: models.NewDateOnly(2026, time.February, 1),
	}); utils.KindOf(err) != utils.ErrorKindInvalidAmount {
		t.Fatalf("expected a sub cent amount to be rejected, got %v", err)
	}

	// 5) Amending can change the amount but never the book.
	otherBook, err := models.CreateAccountBook(ctx, &models.NewAccountBook{
		Name:          "Side Business",
		Currency:      "USD",
		CycleStartDay: 1,
	})
	if err != nil {
		t.Fatalf("CreateAccountBook(other): %v", err)
	}
	if _, err := models.UpdateTransaction(ctx, book.ID, groceries.ID, &models.NewTransaction{
		AccountBookId:   otherBook.ID,
		CategoryId:      food.ID,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("40.00"),
		TransactionDate: models.NewDateOnly(2026, time.February, 5),
	}); utils.KindOf(err) != utils.ErrorKindConflict {
		t.Fatalf("expected a cross book move to conflict, got %v", err)
	}
	if _, err := models.UpdateTransaction(ctx, book.ID, groceries.ID, &models.NewTransaction{
		CategoryId:      food.ID,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("45.50"),
		TransactionDate: models.NewDateOnly(2026, time.February, 5),
		Description:     "groceries",
		Tags:            models.TagList{"food", "weekly"},
	}); err != nil {
		t.Fatalf("UpdateTransaction(groceries): %v", err)
	}

	// 6) Monthly summary: both salaries and the groceries land in the
	// January period, the coffee opens February.
	summary, err := reports.GetMonthlySummary(ctx, book.ID, models.DateOnly{}, models.DateOnly{})
	if err != nil {
		t.Fatalf("GetMonthlySummary: %v", err)
	}
	if len(summary.Periods) != 3 {
		t.Fatalf("expected 3 summary rows, got %d: %+v", len(summary.Periods), summary.Periods)
	}
	januaryIncome := findPeriod(summary.Periods, 2026, 1, models.TransactionTypeIncome)
	if januaryIncome == nil {
		t.Fatalf("missing 2026-01 income row")
	}
	if januaryIncome.TotalAmount.String() != "8000.00" || januaryIncome.Count != 2 {
		t.Fatalf("expected January income {8000.00, 2}, got {%s, %d}", januaryIncome.TotalAmount, januaryIncome.Count)
	}
	if januaryIncome.PeriodStart.String() != "2026-01-25" || januaryIncome.PeriodEnd.String() != "2026-02-24" {
		t.Fatalf("expected January period [2026-01-25, 2026-02-24], got [%s, %s]",
			januaryIncome.PeriodStart, januaryIncome.PeriodEnd)
	}
	januaryExpense := findPeriod(summary.Periods, 2026, 1, models.TransactionTypeExpense)
	if januaryExpense == nil || januaryExpense.TotalAmount.String() != "45.50" || januaryExpense.Count != 1 {
		t.Fatalf("expected January expense {45.50, 1}, got %+v", januaryExpense)
	}
	februaryExpense := findPeriod(summary.Periods, 2026, 2, models.TransactionTypeExpense)
	if februaryExpense == nil || februaryExpense.TotalAmount.String() != "4.50" || februaryExpense.Count != 1 {
		t.Fatalf("expected February expense {4.50, 1}, got %+v", februaryExpense)
	}

	// 7) Category summary keeps silent categories and reports no average
	// for them.
	categorySummary, err := reports.GetCategorySummary(ctx, book.ID, models.DateOnly{}, models.DateOnly{})
	if err != nil {
		t.Fatalf("GetCategorySummary: %v", err)
	}
	travelRow := findCategoryRow(categorySummary.Categories, "Travel")
	if travelRow == nil {
		t.Fatalf("expected the Travel category to appear with no transactions")
	}
	if travelRow.Count != 0 || travelRow.TotalAmount.String() != "0.00" || travelRow.AverageAmount != nil {
		t.Fatalf("expected Travel {0, 0.00, nil}, got %+v", travelRow)
	}
	foodRow := findCategoryRow(categorySummary.Categories, "Food")
	if foodRow == nil || foodRow.Count != 2 || foodRow.TotalAmount.String() != "50.00" {
		t.Fatalf("expected Food {2, 50.00}, got %+v", foodRow)
	}
	if foodRow.AverageAmount == nil || foodRow.AverageAmount.String() != "25.00" {
		t.Fatalf("expected Food average 25.00, got %v", foodRow.AverageAmount)
	}

	// 8) Pagination: newest first.
	page, err := models.PaginateTransactions(ctx, book.ID, models.TransactionFilter{Page: 1})
	if err != nil {
		t.Fatalf("PaginateTransactions: %v", err)
	}
	if len(page.Transactions) != 4 || page.HasNext {
		t.Fatalf("expected one page of 4 transactions, got %d (hasNext=%v)", len(page.Transactions), page.HasNext)
	}
	if page.Transactions[0].TransactionDate.String() != "2026-02-25" {
		t.Fatalf("expected the newest transaction first, got %s", page.Transactions[0].TransactionDate)
	}

	// 9) Bulk import lands in the same ledger through the same checks.
	workbook := excelize.NewFile()
	header := []string{"Date", "Type", "Category", "Amount", "Description", "Tags"}
	for i, column := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = workbook.SetCellValue("Sheet1", cell, column)
	}
	importRows := [][]string{
		{"2026-03-01", "expense", "Food", "12.25", "market", "food"},
		{"2026-03-02", "income", "Salary", "150.00", "bonus", ""},
	}
	for r, row := range importRows {
		for i, value := range row {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			_ = workbook.SetCellValue("Sheet1", cell, value)
		}
	}
	buffer, err := workbook.WriteToBuffer()
	if err != nil {
		t.Fatalf("build import workbook: %v", err)
	}
	imported, err := models.ImportTransactionsFromXlsx(ctx, book.ID, buffer)
	if err != nil {
		t.Fatalf("ImportTransactionsFromXlsx: %v", err)
	}
	if imported.ImportedCount != 2 {
		t.Fatalf("expected 2 imported rows, got %d", imported.ImportedCount)
	}

	// 10) Sweeping reclaims expired sessions and nothing else.
	expiring, err := models.CreateSession(ctx, user.ID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.Session{}).
		Where("token = ?", expiring.Token).
		Update("expires_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("force expire session: %v", err)
	}
	deleted, err := models.DeleteExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected exactly 1 expired session to be deleted, got %d", deleted)
	}
	if _, err := models.LookupSession(ctx, expiring.Token); err == nil {
		t.Fatalf("expected the swept session to be gone")
	}
	if _, err := models.LookupSession(ctx, session.Token); err != nil {
		t.Fatalf("expected the live session to survive the sweep: %v", err)
	}

	// 11) A second user never sees the first user's book, on any operation.
	intruder, _, err := models.RegisterUser(ctx, &models.NewUser{
		Email:    "intruder@test.local",
		Password: "super-secret-2",
	})
	if err != nil {
		t.Fatalf("RegisterUser(intruder): %v", err)
	}
	if _, err := models.ResendVerification(ctx, "nobody@test.local"); utils.KindOf(err) != utils.ErrorKindNotFound {
		t.Fatalf("expected resend for an unknown email to be not found, got %v", err)
	}
	reissued, err := models.ResendVerification(ctx, "intruder@test.local")
	if err != nil {
		t.Fatalf("ResendVerification(intruder): %v", err)
	}
	if _, err := models.VerifyEmail(ctx, reissued); err != nil {
		t.Fatalf("VerifyEmail(reissued token): %v", err)
	}
	if _, err := models.ResendVerification(ctx, "intruder@test.local"); utils.KindOf(err) != utils.ErrorKindConflict {
		t.Fatalf("expected resend for a verified email to conflict, got %v", err)
	}
	intruderSession, _, err := models.Login(ctx, "intruder@test.local", "super-secret-2")
	if err != nil {
		t.Fatalf("Login(intruder): %v", err)
	}
	intruderCtx := utils.SetUserIdInContext(context.Background(), intruder.ID)
	intruderCtx = utils.SetTokenInContext(intruderCtx, intruderSession.Token)
	if _, err := models.GetAccountBook(intruderCtx, book.ID); utils.KindOf(err) != utils.ErrorKindForbidden {
		t.Fatalf("expected a foreign book read to be forbidden, got %v", err)
	}
	if _, err := models.GetCategories(intruderCtx, book.ID); utils.KindOf(err) != utils.ErrorKindForbidden {
		t.Fatalf("expected a foreign category listing to be forbidden, got %v", err)
	}
	if _, err := models.CreateTransaction(intruderCtx, book.ID, &models.NewTransaction{
		CategoryId:      food.ID,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("1.00"),
		TransactionDate: models.NewDateOnly(2026, time.March, 1),
	}); utils.KindOf(err) != utils.ErrorKindForbidden {
		t.Fatalf("expected a foreign posting to be forbidden, got %v", err)
	}
	if _, err := reports.GetMonthlySummary(intruderCtx, book.ID, models.DateOnly{}, models.DateOnly{}); utils.KindOf(err) != utils.ErrorKindForbidden {
		t.Fatalf("expected a foreign report to be forbidden, got %v", err)
	}

	// 12) The caller picks the page size; the ledger holds 6 entries now.
	firstHalf, err := models.PaginateTransactions(ctx, book.ID, models.TransactionFilter{Page: 1, PageSize: 4})
	if err != nil {
		t.Fatalf("PaginateTransactions(page 1, size 4): %v", err)
	}
	if len(firstHalf.Transactions) != 4 || !firstHalf.HasNext || firstHalf.PageSize != 4 {
		t.Fatalf("expected 4 transactions with a next page, got %d (hasNext=%v, pageSize=%d)",
			len(firstHalf.Transactions), firstHalf.HasNext, firstHalf.PageSize)
	}
	secondHalf, err := models.PaginateTransactions(ctx, book.ID, models.TransactionFilter{Page: 2, PageSize: 4})
	if err != nil {
		t.Fatalf("PaginateTransactions(page 2, size 4): %v", err)
	}
	if len(secondHalf.Transactions) != 2 || secondHalf.HasNext {
		t.Fatalf("expected the last 2 transactions, got %d (hasNext=%v)",
			len(secondHalf.Transactions), secondHalf.HasNext)
	}

	// 13) Deactivating a category hides it from listings and new postings,
	// keeps it in reports, lets existing entries be amended in place, and
	// frees its name for a fresh category.
	if _, err := models.DeactivateCategory(ctx, book.ID, food.ID); err != nil {
		t.Fatalf("DeactivateCategory(Food): %v", err)
	}
	categories, err := models.GetCategories(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetCategories: %v", err)
	}
	for _, category := range categories {
		if category.ID == food.ID {
			t.Fatalf("expected the deactivated category to be hidden from the listing")
		}
	}
	if _, err := models.UpdateTransaction(ctx, book.ID, groceries.ID, &models.NewTransaction{
		CategoryId:      food.ID,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("45.50"),
		TransactionDate: models.NewDateOnly(2026, time.February, 5),
		Description:     "groceries and household",
		Tags:            models.TagList{"food", "weekly"},
	}); err != nil {
		t.Fatalf("expected an amend to keep its deactivated category: %v", err)
	}
	if _, err := models.CreateTransaction(ctx, book.ID, &models.NewTransaction{
		CategoryId:      food.ID,
		Type:            models.TransactionTypeExpense,
		Amount:          decimal.RequireFromString("5.00"),
		TransactionDate: models.NewDateOnly(2026, time.March, 3),
	}); utils.KindOf(err) != utils.ErrorKindNotFound {
		t.Fatalf("expected a posting against a deactivated category to be not found, got %v", err)
	}
	categorySummary, err = reports.GetCategorySummary(ctx, book.ID, models.DateOnly{}, models.DateOnly{})
	if err != nil {
		t.Fatalf("GetCategorySummary after deactivation: %v", err)
	}
	foodRow = findCategoryRow(categorySummary.Categories, "Food")
	if foodRow == nil || foodRow.IsActive {
		t.Fatalf("expected the deactivated category to stay in the report, got %+v", foodRow)
	}
	if foodRow.Count != 3 || foodRow.TotalAmount.String() != "62.25" {
		t.Fatalf("expected Food {3, 62.25} after deactivation, got {%d, %s}", foodRow.Count, foodRow.TotalAmount)
	}
	if foodRow.AverageAmount == nil || foodRow.AverageAmount.String() != "20.75" {
		t.Fatalf("expected Food average 20.75, got %v", foodRow.AverageAmount)
	}
	if _, err := models.CreateCategory(ctx, book.ID, &models.NewCategory{Name: "Food", Type: models.TransactionTypeExpense}); err != nil {
		t.Fatalf("expected the deactivated category's name to be reusable: %v", err)
	}
}

func findPeriod(periods []reports.MonthlyPeriodSummary, year int, month int, kind models.TransactionType) *reports.MonthlyPeriodSummary {
	for i := range periods {
		if periods[i].Year == year && periods[i].Month == month && periods[i].Type == kind {
			return &periods[i]
		}
	}
	return nil
}

func findCategoryRow(rows []reports.CategorySummaryDetail, name string) *reports.CategorySummaryDetail {
	for i := range rows {
		if rows[i].CategoryName == name {
			return &rows[i]
		}
	}
	return nil
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("moneybook-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("moneybook-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=moneybook_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
