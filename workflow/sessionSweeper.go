package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const sessionSweepLockKey = "Lock:SessionSweeper"

// SessionSweeper periodically deletes sessions whose expiry has passed.
// Expiry is also checked at authentication time, so the sweeper only
// reclaims storage; a missed or failed sweep delays cleanup and nothing
// else. The delete is a single predicate, safe to run twice and safe to run
// from several instances at once, so the cross instance lock is best effort
// and its loss is tolerated.
type SessionSweeper struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	SweeperID string

	PollInterval time.Duration
	LockTTL      time.Duration
}

func NewSessionSweeper(db *gorm.DB, logger *logrus.Logger) *SessionSweeper {
	return &SessionSweeper{
		DB:           db,
		Logger:       logger,
		SweeperID:    uuid.NewString(),
		PollInterval: 10 * time.Minute,
		LockTTL:      time.Minute,
	}
}

func (s *SessionSweeper) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.PollInterval):
		}
	}
}

func (s *SessionSweeper) sweepOnce(ctx context.Context) {
	if s.DB == nil {
		return
	}

	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, sessionSweepLockKey, s.LockTTL, nil)
		if err == redislock.ErrNotObtained {
			// Another instance is sweeping right now.
			return
		}
		if err == nil {
			defer func() {
				_ = lock.Release(ctx)
			}()
		}
	}

	deleted, err := s.deleteExpired(ctx, time.Now().UTC())
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"field":      "SessionSweeper",
				"sweeper_id": s.SweeperID,
			}).Error("session sweep failed, retrying on next tick: " + err.Error())
		}
		return
	}
	if deleted > 0 && s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":      "SessionSweeper",
			"sweeper_id": s.SweeperID,
			"deleted":    deleted,
		}).Info("expired sessions removed")
	}
}

func (s *SessionSweeper) deleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.DB.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
