package models

import (
	"bitbucket.org/mmdatafocus/moneybook_backend/config"
)

func MigrateTable() error {
	db := config.GetDB()
	return db.AutoMigrate(
		&User{},
		&Session{},
		&AccountBook{},
		&Category{},
		&Transaction{},
		&TransactionAttachment{},
	)
}
