package models

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	MaxAttachmentSizeBytes = 5 << 20
	thumbnailWidth         = 320
)

var attachmentMimeTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// TransactionAttachment is a stored receipt. The binary lives in the object
// store under ObjectKey; images additionally get a JPEG thumbnail under
// ThumbnailKey for list views.
type TransactionAttachment struct {
	ID            int       `gorm:"primary_key" json:"id"`
	TransactionId int       `gorm:"index;not null" json:"transaction_id"`
	AccountBookId int       `gorm:"index;not null" json:"account_book_id"`
	FileName      string    `gorm:"size:255;not null" json:"file_name"`
	MimeType      string    `gorm:"size:100;not null" json:"mime_type"`
	SizeBytes     int64     `gorm:"not null" json:"size_bytes"`
	ObjectKey     string    `gorm:"size:255;not null" json:"object_key"`
	ThumbnailKey  string    `gorm:"size:255" json:"thumbnail_key"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func generateThumbnail(originalData []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(originalData))
	if err != nil {
		return nil, err
	}

	thumbnail := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var thumbnailBuffer bytes.Buffer
	err = imaging.Encode(&thumbnailBuffer, thumbnail, imaging.JPEG)
	if err != nil {
		return nil, err
	}
	return thumbnailBuffer.Bytes(), nil
}

// CreateTransactionAttachment stores a receipt against a transaction. The
// object goes to cloud storage first and the row is written after, so a
// failed upload never leaves a row pointing at nothing.
func CreateTransactionAttachment(ctx context.Context, bookId int, transactionId int, fileName string, mimeType string, data []byte) (*TransactionAttachment, error) {
	transaction, err := GetTransaction(ctx, bookId, transactionId)
	if err != nil {
		return nil, err
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	ext, ok := attachmentMimeTypes[mimeType]
	if !ok {
		return nil, utils.NewInvalidArgumentError("%s attachments are not supported, use JPEG, PNG or PDF", mimeType)
	}
	if len(data) == 0 {
		return nil, utils.NewInvalidArgumentError("attachment is empty")
	}
	if len(data) > MaxAttachmentSizeBytes {
		return nil, utils.NewInvalidArgumentError("attachment must not exceed 5 MB")
	}
	if utils.GetStorageProvider() != utils.StorageProviderGCS {
		return nil, fmt.Errorf("storage provider %q is not supported for receipts", utils.GetStorageProvider())
	}

	fileName = filepath.Base(strings.TrimSpace(fileName))
	if fileName == "" || fileName == "." {
		fileName = "receipt" + ext
	}
	if len(fileName) > 255 {
		fileName = fileName[len(fileName)-255:]
	}

	objectKey := filepath.Join("receipts",
		strconv.Itoa(transaction.AccountBookId), uuid.NewString()+ext)

	if err := utils.UploadObjectToGCS(ctx, objectKey, mimeType, data); err != nil {
		return nil, err
	}

	thumbnailKey := ""
	if mimeType == "image/jpeg" || mimeType == "image/png" {
		thumbnailData, err := generateThumbnail(data)
		if err != nil {
			return nil, utils.NewInvalidArgumentError("attachment is not a decodable image")
		}
		thumbnailKey = filepath.Join("receipts",
			strconv.Itoa(transaction.AccountBookId), "thumbnails", uuid.NewString()+".jpg")
		if err := utils.UploadObjectToGCS(ctx, thumbnailKey, "image/jpeg", thumbnailData); err != nil {
			return nil, err
		}
	}

	attachment := TransactionAttachment{
		TransactionId: transaction.ID,
		AccountBookId: transaction.AccountBookId,
		FileName:      fileName,
		MimeType:      mimeType,
		SizeBytes:     int64(len(data)),
		ObjectKey:     objectKey,
		ThumbnailKey:  thumbnailKey,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&attachment).Error; err != nil {
		return nil, err
	}
	return &attachment, nil
}

func GetTransactionAttachments(ctx context.Context, bookId int, transactionId int) ([]*TransactionAttachment, error) {
	transaction, err := GetTransaction(ctx, bookId, transactionId)
	if err != nil {
		return nil, err
	}

	var attachments []*TransactionAttachment
	db := config.GetDB()
	err = db.WithContext(ctx).
		Where("transaction_id = ?", transaction.ID).
		Order("created_at ASC, id ASC").
		Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

func GetTransactionAttachment(ctx context.Context, bookId int, id int) (*TransactionAttachment, error) {
	book, err := GetAccountBook(ctx, bookId)
	if err != nil {
		return nil, err
	}
	attachment, err := utils.FetchBookModel[TransactionAttachment](ctx, book.ID, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, utils.NewNotFoundError("attachment not found")
		}
		return nil, err
	}
	return attachment, nil
}

// DeleteTransactionAttachment removes the row first and then cleans up the
// stored objects best effort. A leaked object is invisible to users and far
// cheaper than a row pointing at a deleted object.
func DeleteTransactionAttachment(ctx context.Context, bookId int, id int) error {
	attachment, err := GetTransactionAttachment(ctx, bookId, id)
	if err != nil {
		return err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&TransactionAttachment{}, attachment.ID).Error; err != nil {
		return err
	}

	logger := config.GetLogger()
	if err := utils.DeleteObjectFromGCS(ctx, attachment.ObjectKey); err != nil {
		config.LogError(logger, "attachment", "DeleteTransactionAttachment", "delete object", attachment.ObjectKey, err)
	}
	if attachment.ThumbnailKey != "" {
		if err := utils.DeleteObjectFromGCS(ctx, attachment.ThumbnailKey); err != nil {
			config.LogError(logger, "attachment", "DeleteTransactionAttachment", "delete thumbnail", attachment.ThumbnailKey, err)
		}
	}
	return nil
}

// CleanupAttachmentObjects deletes stored objects for rows that are already
// gone, logging failures instead of surfacing them.
func CleanupAttachmentObjects(ctx context.Context, attachments []*TransactionAttachment) {
	logger := config.GetLogger()
	for _, attachment := range attachments {
		if err := utils.DeleteObjectFromGCS(ctx, attachment.ObjectKey); err != nil {
			config.LogError(logger, "attachment", "CleanupAttachmentObjects", "delete object", attachment.ObjectKey, err)
		}
		if attachment.ThumbnailKey != "" {
			if err := utils.DeleteObjectFromGCS(ctx, attachment.ThumbnailKey); err != nil {
				config.LogError(logger, "attachment", "CleanupAttachmentObjects", "delete thumbnail", attachment.ThumbnailKey, err)
			}
		}
	}
}
