// seed-demo creates or refreshes the demo login (email: demo@moneybook.local)
// together with a "Personal" account book and a starter category set.
// The demo user is created verified so it can log in straight away.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-demo
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"gorm.io/gorm"
)

const (
	demoEmail    = "demo@moneybook.local"
	demoPassword = "m0neyB00k-demo"
	demoBookName = "Personal"
)

var starterCategories = []models.NewCategory{
	{Name: "Salary", Type: models.TransactionTypeIncome, Icon: "briefcase", Color: "#2e7d32"},
	{Name: "Other Income", Type: models.TransactionTypeIncome, Icon: "plus-circle", Color: "#558b2f"},
	{Name: "Food", Type: models.TransactionTypeExpense, Icon: "utensils", Color: "#ef6c00"},
	{Name: "Transport", Type: models.TransactionTypeExpense, Icon: "bus", Color: "#1565c0"},
	{Name: "Rent", Type: models.TransactionTypeExpense, Icon: "home", Color: "#6a1b9a"},
	{Name: "Utilities", Type: models.TransactionTypeExpense, Icon: "bolt", Color: "#00838f"},
	{Name: "Other Expense", Type: models.TransactionTypeExpense, Icon: "minus-circle", Color: "#616161"},
}

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	if err := models.MigrateTable(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate tables: %v\n", err)
		os.Exit(1)
	}

	hashed, err := utils.HashPassword(demoPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var user models.User
	err = db.WithContext(ctx).Model(&models.User{}).Where("email = ?", demoEmail).First(&user).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		user = models.User{
			Email:        demoEmail,
			PasswordHash: hashed,
			IsVerified:   utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create demo user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created demo user: email=%q\n", demoEmail)
	} else {
		if err := db.WithContext(ctx).Model(&models.User{}).Where("email = ?", demoEmail).Updates(map[string]any{
			"password_hash": hashed,
			"is_verified":   utils.NewTrue(),
		}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update demo user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated demo user: email=%q\n", demoEmail)
	}

	ctx = utils.SetUserIdInContext(ctx, user.ID)

	var book models.AccountBook
	err = db.WithContext(ctx).Model(&models.AccountBook{}).
		Where("user_id = ? AND name = ? AND is_active = 1", user.ID, demoBookName).
		First(&book).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "failed to lookup account book: %v\n", err)
			os.Exit(1)
		}
		created, err := models.CreateAccountBook(ctx, &models.NewAccountBook{
			Name:          demoBookName,
			Description:   "Demo account book",
			Currency:      "USD",
			CycleStartDay: 1,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create account book: %v\n", err)
			os.Exit(1)
		}
		book = *created
		fmt.Printf("Created account book: name=%q id=%d\n", demoBookName, book.ID)
	}

	existing, err := models.GetCategories(ctx, book.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list categories: %v\n", err)
		os.Exit(1)
	}
	taken := make(map[string]bool, len(existing))
	for _, category := range existing {
		taken[category.Name] = true
	}

	seeded := 0
	for i := range starterCategories {
		if taken[starterCategories[i].Name] {
			continue
		}
		if _, err := models.CreateCategory(ctx, book.ID, &starterCategories[i]); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create category %q: %v\n", starterCategories[i].Name, err)
			os.Exit(1)
		}
		seeded++
	}
	fmt.Printf("Seeded %d categories (book id=%d)\n", seeded, book.ID)
}
