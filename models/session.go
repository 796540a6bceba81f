package models

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one signed in device. The row in MySQL is the source of truth;
// Redis carries a copy keyed by token so the per request lookup stays off
// the database on the hot path.
type Session struct {
	Token     string    `gorm:"primaryKey;size:64" json:"token"`
	UserId    int       `gorm:"index;not null" json:"user_id"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func SessionCacheKey(token string) string {
	return "Session:" + token
}

func sessionLifespan() time.Duration {
	hours, err := strconv.Atoi(os.Getenv("SESSION_TTL_HOURS"))
	if err != nil || hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

func cacheSession(session *Session) {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return
	}
	config.SetRedisValue(SessionCacheKey(session.Token), strconv.Itoa(session.UserId), ttl)
}

func CreateSession(ctx context.Context, userId int) (*Session, error) {
	session := Session{
		Token:     uuid.NewString(),
		UserId:    userId,
		ExpiresAt: time.Now().UTC().Add(sessionLifespan()),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}
	cacheSession(&session)
	return &session, nil
}

// LookupSession resolves a token against the database and refreshes the
// Redis copy. An expired row is treated as absent; the sweeper will reap it
// shortly.
func LookupSession(ctx context.Context, token string) (*Session, error) {
	var session Session
	db := config.GetDB()
	result := db.WithContext(ctx).Where("token = ?", token).First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, result.Error
	}
	if !session.ExpiresAt.After(time.Now().UTC()) {
		return nil, utils.ErrorRecordNotFound
	}
	cacheSession(&session)
	return &session, nil
}

func DeleteSession(ctx context.Context, token string) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("token = ?", token).Delete(&Session{}).Error; err != nil {
		return err
	}
	config.RemoveRedisKey(SessionCacheKey(token))
	return nil
}

// DestroyOtherSessions revokes every session of a user except keepToken.
func DestroyOtherSessions(ctx context.Context, userId int, keepToken string) error {
	tokens, err := SessionTokensForUser(ctx, userId)
	if err != nil {
		return err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).
		Where("user_id = ? AND token <> ?", userId, keepToken).
		Delete(&Session{}).Error
	if err != nil {
		return err
	}

	for _, token := range tokens {
		if token == keepToken {
			continue
		}
		config.RemoveRedisKey(SessionCacheKey(token))
	}
	return nil
}

func SessionTokensForUser(ctx context.Context, userId int) ([]string, error) {
	var tokens []string
	db := config.GetDB()
	err := db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ?", userId).
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteExpiredSessions reaps every session past its expiry and reports how
// many rows went away. Redis copies expire on their own TTL.
func DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	db := config.GetDB()
	result := db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&Session{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
