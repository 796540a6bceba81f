package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const verifyTokenLifespan = 24 * time.Hour

type User struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	Email              string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash       string    `gorm:"size:255;not null" json:"-"`
	IsVerified         *bool     `gorm:"not null;default:false" json:"is_verified"`
	LastSelectedBookId int       `gorm:"not null;default:0" json:"last_selected_book_id"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// RegisterUser creates an unverified account and returns the email
// verification token the caller delivers out of band. The unique index on
// email backstops the pre check, so a racing duplicate still reads as a
// conflict instead of a bare database error.
func RegisterUser(ctx context.Context, input *NewUser) (*User, string, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if !utils.IsValidEmail(input.Email) {
		return nil, "", utils.NewInvalidArgumentError("%s is not a valid email address", input.Email)
	}
	if len(input.Password) < 8 {
		return nil, "", utils.NewInvalidArgumentError("password must be at least 8 characters")
	}

	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&User{}).
		Where("email = ?", input.Email).
		Count(&count).Error
	if err != nil {
		return nil, "", err
	}
	if count > 0 {
		return nil, "", utils.NewConflictError("email is already registered")
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, "", err
	}

	user := User{
		Email:        input.Email,
		PasswordHash: hash,
		IsVerified:   utils.NewFalse(),
	}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		if isDuplicateKeyError(err) {
			return nil, "", utils.NewConflictError("email is already registered")
		}
		return nil, "", err
	}

	token, err := utils.JwtGenerate(user.ID, utils.TokenPurposeVerifyEmail, verifyTokenLifespan)
	if err != nil {
		return nil, "", err
	}
	return &user, token, nil
}

// VerifyEmail redeems a verification token. Verifying twice is harmless;
// the second call finds the flag already set and returns the user as is.
func VerifyEmail(ctx context.Context, token string) (*User, error) {
	claims, err := utils.JwtValidate(token)
	if err != nil || claims.Purpose != utils.TokenPurposeVerifyEmail {
		return nil, utils.NewInvalidArgumentError("verification token is invalid or expired")
	}

	user, err := utils.FetchSingleModel[User](ctx, claims.ID)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewNotFoundError("user not found")
		}
		return nil, err
	}
	if utils.DereferencePtr(user.IsVerified, false) {
		return user, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"is_verified": true,
	}).Error
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ResendVerification issues a fresh verification token for an address that
// registered but never verified. Earlier tokens stay valid until they
// expire; a token only proves control of the account it names.
func ResendVerification(ctx context.Context, email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user User
	db := config.GetDB()
	result := db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", utils.NewNotFoundError("email is not registered")
		}
		return "", result.Error
	}
	if utils.DereferencePtr(user.IsVerified, false) {
		return "", utils.NewConflictError("email is already verified")
	}
	return utils.JwtGenerate(user.ID, utils.TokenPurposeVerifyEmail, verifyTokenLifespan)
}

// Login checks credentials and opens a session. Bad email and bad password
// read the same so the endpoint cannot be used to probe which addresses
// have accounts.
func Login(ctx context.Context, email string, password string) (*Session, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user User
	db := config.GetDB()
	result := db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil, utils.NewForbiddenError("invalid email or password")
		}
		return nil, nil, result.Error
	}
	if err := utils.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, nil, utils.NewForbiddenError("invalid email or password")
	}
	if !utils.DereferencePtr(user.IsVerified, false) {
		return nil, nil, utils.NewForbiddenError("email is not verified")
	}

	session, err := CreateSession(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, &user, nil
}

// Logout tears down the calling session only. Other devices stay signed in.
func Logout(ctx context.Context) error {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok {
		return errors.New("session token is required")
	}
	return DeleteSession(ctx, token)
}

// ChangePassword swaps the credential and revokes every other session, so a
// stolen token dies with the old password while the current device stays
// signed in.
func ChangePassword(ctx context.Context, input *ChangePasswordInput) error {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}

	user, err := utils.FetchSingleModel[User](ctx, userId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return utils.NewNotFoundError("user not found")
		}
		return err
	}
	if err := utils.ComparePassword(user.PasswordHash, input.CurrentPassword); err != nil {
		return utils.NewForbiddenError("current password is incorrect")
	}
	if len(input.NewPassword) < 8 {
		return utils.NewInvalidArgumentError("password must be at least 8 characters")
	}

	hash, err := utils.HashPassword(input.NewPassword)
	if err != nil {
		return err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"password_hash": hash,
	}).Error
	if err != nil {
		return err
	}

	keepToken, _ := utils.GetTokenFromContext(ctx)
	return DestroyOtherSessions(ctx, userId, keepToken)
}

// DeleteUser removes an account that has no active books left. Books must
// be deactivated or hard deleted first; the guard keeps a stray delete from
// silently orphaning ledgers.
func DeleteUser(ctx context.Context) error {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return errors.New("user id is required")
	}

	db := config.GetDB()
	var count int64
	err := db.WithContext(ctx).Model(&AccountBook{}).
		Where("user_id = ? AND is_active = 1", userId).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return utils.NewConflictError("account still has active books")
	}

	tokens, err := SessionTokensForUser(ctx, userId)
	if err != nil {
		return err
	}

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := tx.Where("user_id = ?", userId).Delete(&Session{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Delete(&User{}, userId).Error; err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}

	for _, token := range tokens {
		config.RemoveRedisKey(SessionCacheKey(token))
	}
	return nil
}

func GetCurrentUser(ctx context.Context) (*User, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return nil, errors.New("user id is required")
	}
	user, err := utils.FetchSingleModel[User](ctx, userId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewNotFoundError("user not found")
		}
		return nil, err
	}
	return user, nil
}
