// session-sweep deletes expired session rows once and exits. The server runs
// the same sweep on a timer; this command covers one-off cleanup after a long
// outage or before restoring a backup.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/session-sweep [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Count expired sessions without deleting them.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	now := time.Now().UTC()
	if *dryRun {
		var count int64
		if err := db.WithContext(ctx).Model(&models.Session{}).
			Where("expires_at <= ?", now).
			Count(&count).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to count expired sessions: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d expired sessions would be deleted\n", count)
		return
	}

	deleted, err := models.DeleteExpiredSessions(ctx, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to delete expired sessions: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d expired sessions\n", deleted)
}
