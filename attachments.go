package main

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/gin-gonic/gin"
)

func uploadAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		bookId, err := paramInt(c, "bookId")
		if err != nil {
			writeError(c, err)
			return
		}
		transactionId, err := paramInt(c, "id")
		if err != nil {
			writeError(c, err)
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			writeError(c, utils.NewInvalidArgumentError("file is required"))
			return
		}
		if fileHeader.Size > models.MaxAttachmentSizeBytes {
			writeError(c, utils.NewInvalidArgumentError("attachment must not exceed 5 MB"))
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			writeError(c, err)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, models.MaxAttachmentSizeBytes+1))
		if err != nil {
			writeError(c, err)
			return
		}

		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}

		attachment, err := models.CreateTransactionAttachment(
			c.Request.Context(), bookId, transactionId, fileHeader.Filename, contentType, data)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, attachment)
	}
}

func listAttachmentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		bookId, err := paramInt(c, "bookId")
		if err != nil {
			writeError(c, err)
			return
		}
		transactionId, err := paramInt(c, "id")
		if err != nil {
			writeError(c, err)
			return
		}
		attachments, err := models.GetTransactionAttachments(c.Request.Context(), bookId, transactionId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"attachments": attachments})
	}
}

// downloadAttachmentHandler streams the stored object. Headers come from
// the attachment row so they are written before the first body byte; a
// failure mid stream can only be logged at that point.
func downloadAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		bookId, err := paramInt(c, "bookId")
		if err != nil {
			writeError(c, err)
			return
		}
		id, err := paramInt(c, "id")
		if err != nil {
			writeError(c, err)
			return
		}
		attachment, err := models.GetTransactionAttachment(c.Request.Context(), bookId, id)
		if err != nil {
			writeError(c, err)
			return
		}

		objectKey := attachment.ObjectKey
		contentType := attachment.MimeType
		size := attachment.SizeBytes
		if strings.EqualFold(c.Query("thumbnail"), "true") {
			if attachment.ThumbnailKey == "" {
				writeError(c, utils.NewNotFoundError("attachment has no thumbnail"))
				return
			}
			objectKey = attachment.ThumbnailKey
			contentType = "image/jpeg"
			size = 0
		}

		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", "inline; filename="+strconv.Quote(attachment.FileName))
		if size > 0 {
			c.Header("Content-Length", strconv.FormatInt(size, 10))
		}
		if _, _, err := utils.ReadObjectFromGCS(c.Request.Context(), objectKey, c.Writer); err != nil {
			config.GetLogger().Error("failed to stream attachment: " + err.Error())
		}
	}
}

func deleteAttachmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		bookId, err := paramInt(c, "bookId")
		if err != nil {
			writeError(c, err)
			return
		}
		id, err := paramInt(c, "id")
		if err != nil {
			writeError(c, err)
			return
		}
		if err := models.DeleteTransactionAttachment(c.Request.Context(), bookId, id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}
