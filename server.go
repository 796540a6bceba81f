package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/middlewares"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"bitbucket.org/mmdatafocus/moneybook_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// RateLimiter throttles per client IP using a Redis counter per window.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// writeError maps a service failure onto the wire contract: one status, one
// human readable message, one discriminated kind. Raw internal detail never
// leaves the process.
func writeError(c *gin.Context, err error) {
	kind := utils.KindOf(err)
	if kind == utils.ErrorKindInternal {
		logger := config.GetLogger()
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"field":          "http",
			"path":           c.Request.URL.Path,
			"correlation_id": cid,
		}).Error(err.Error())
	}
	c.JSON(utils.HTTPStatus(kind), gin.H{
		"error": utils.UserMessage(err),
		"kind":  kind,
	})
}

func writeBindingError(c *gin.Context, err error) {
	if utils.KindOf(err) != utils.ErrorKindInternal {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error": utils.BindingErrorMessage(err),
		"kind":  utils.ErrorKindInvalidArgument,
	})
}

func paramInt(c *gin.Context, name string) (int, error) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil || value <= 0 {
		return 0, utils.NewInvalidArgumentError("%s must be a positive integer", name)
	}
	return value, nil
}

func parseDateQuery(c *gin.Context, name string) (models.DateOnly, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return models.DateOnly{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return models.DateOnly{}, utils.NewInvalidArgumentError("%s must be a date in YYYY-MM-DD form", name)
	}
	return models.DateOnly(t), nil
}

// ---- account handlers ----

func registerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		user, verificationToken, err := models.RegisterUser(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		// The verification token is returned to the caller; delivering it by
		// mail is the job of a separate service.
		c.JSON(http.StatusOK, gin.H{
			"user":               user,
			"verification_token": verificationToken,
		})
	}
}

func verifyEmailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			writeError(c, utils.NewInvalidArgumentError("token is required"))
			return
		}
		user, err := models.VerifyEmail(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user})
	}
}

type resendVerificationRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func resendVerificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resendVerificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		token, err := models.ResendVerification(c.Request.Context(), req.Email)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"verification_token": token})
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		session, user, err := models.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":      session.Token,
			"expires_at": session.ExpiresAt,
			"user":       user,
		})
	}
}

func logoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := models.Logout(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"logged_out": true})
	}
}

func changePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input models.ChangePasswordInput
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		if err := models.ChangePassword(c.Request.Context(), &input); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"changed": true})
	}
}

func deleteAccountHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if err := models.DeleteUser(c.Request.Context()); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func currentUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		user, err := models.GetCurrentUser(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// ---- account book handlers ----

func createBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var input models.NewAccountBook
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		book, err := models.CreateAccountBook(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, book)
	}
}

func listBooksHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetUserIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		books, err := models.GetAccountBooks(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account_books": books})
	}
}

func getBookHandler() gin.HandlerFunc {
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
		book, err := models.GetAccountBook(c.Request.Context(), bookId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, book)
	}
}

func updateBookHandler() gin.HandlerFunc {
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
		var input models.NewAccountBook
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		book, err := models.UpdateAccountBook(c.Request.Context(), bookId, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, book)
	}
}

func deactivateBookHandler() gin.HandlerFunc {
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
		book, err := models.DeactivateAccountBook(c.Request.Context(), bookId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, book)
	}
}

func hardDeleteBookHandler() gin.HandlerFunc {
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
		if err := models.HardDeleteAccountBook(c.Request.Context(), bookId); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func selectBookHandler() gin.HandlerFunc {
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
		book, err := models.SelectAccountBook(c.Request.Context(), bookId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, book)
	}
}

// ---- category handlers ----

func createCategoryHandler() gin.HandlerFunc {
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
		var input models.NewCategory
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		category, err := models.CreateCategory(c.Request.Context(), bookId, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, category)
	}
}

func listCategoriesHandler() gin.HandlerFunc {
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
		categories, err := models.GetCategories(c.Request.Context(), bookId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"categories": categories})
	}
}

func updateCategoryHandler() gin.HandlerFunc {
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
		var input models.NewCategory
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		category, err := models.UpdateCategory(c.Request.Context(), bookId, id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, category)
	}
}

func deactivateCategoryHandler() gin.HandlerFunc {
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
		category, err := models.DeactivateCategory(c.Request.Context(), bookId, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, category)
	}
}

type reorderCategoriesRequest struct {
	CategoryIds []int `json:"category_ids" binding:"required,min=1"`
}

func reorderCategoriesHandler() gin.HandlerFunc {
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
		var req reorderCategoriesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
		categories, err := models.ReorderCategories(c.Request.Context(), bookId, req.CategoryIds)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"categories": categories})
	}
}

// ---- transaction handlers ----

func createTransactionHandler() gin.HandlerFunc {
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
		var input models.NewTransaction
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		transaction, err := models.CreateTransaction(c.Request.Context(), bookId, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func paginateTransactionsHandler() gin.HandlerFunc {
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

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))
		categoryId, _ := strconv.Atoi(c.DefaultQuery("category_id", "0"))
		from, err := parseDateQuery(c, "from")
		if err != nil {
			writeError(c, err)
			return
		}
		to, err := parseDateQuery(c, "to")
		if err != nil {
			writeError(c, err)
			return
		}

		filter := models.TransactionFilter{
			CategoryId: categoryId,
			Type:       models.TransactionType(strings.TrimSpace(c.Query("type"))),
			From:       from,
			To:         to,
			Page:       page,
			PageSize:   pageSize,
		}
		result, err := models.PaginateTransactions(c.Request.Context(), bookId, filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func getTransactionHandler() gin.HandlerFunc {
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
		transaction, err := models.GetTransaction(c.Request.Context(), bookId, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func updateTransactionHandler() gin.HandlerFunc {
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
		var input models.NewTransaction
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindingError(c, err)
			return
		}
		transaction, err := models.UpdateTransaction(c.Request.Context(), bookId, id, &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, transaction)
	}
}

func deleteTransactionHandler() gin.HandlerFunc {
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
		attachments, err := models.DeleteTransaction(c.Request.Context(), bookId, id)
		if err != nil {
			writeError(c, err)
			return
		}
		models.CleanupAttachmentObjects(c.Request.Context(), attachments)
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

func importTransactionsHandler() gin.HandlerFunc {
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
		fileHeader, err := c.FormFile("file")
		if err != nil {
			writeError(c, utils.NewInvalidArgumentError("file is required"))
			return
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			writeError(c, utils.NewInvalidArgumentError("only .xlsx files are allowed"))
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			writeError(c, err)
			return
		}
		defer file.Close()

		result, err := models.ImportTransactionsFromXlsx(c.Request.Context(), bookId, file)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", registerHandler())
	auth.GET("/verify", verifyEmailHandler())
	auth.POST("/resend-verification", resendVerificationHandler())
	auth.POST("/login", loginHandler())
	auth.POST("/logout", logoutHandler())
	auth.POST("/change-password", changePasswordHandler())
	auth.DELETE("/account", deleteAccountHandler())
	auth.GET("/me", currentUserHandler())

	books := api.Group("/books")
	books.POST("", createBookHandler())
	books.GET("", listBooksHandler())
	books.GET("/:bookId", getBookHandler())
	books.PUT("/:bookId", updateBookHandler())
	books.DELETE("/:bookId", deactivateBookHandler())
	books.DELETE("/:bookId/hard", hardDeleteBookHandler())
	books.POST("/:bookId/select", selectBookHandler())

	books.GET("/:bookId/categories", listCategoriesHandler())
	books.POST("/:bookId/categories", createCategoryHandler())
	books.PUT("/:bookId/categories/reorder", reorderCategoriesHandler())
	books.PUT("/:bookId/categories/:id", updateCategoryHandler())
	books.DELETE("/:bookId/categories/:id", deactivateCategoryHandler())

	books.GET("/:bookId/transactions", paginateTransactionsHandler())
	books.POST("/:bookId/transactions", createTransactionHandler())
	books.POST("/:bookId/transactions/import", importTransactionsHandler())
	books.GET("/:bookId/transactions/:id", getTransactionHandler())
	books.PUT("/:bookId/transactions/:id", updateTransactionHandler())
	books.DELETE("/:bookId/transactions/:id", deleteTransactionHandler())

	books.POST("/:bookId/transactions/:id/attachments", uploadAttachmentHandler())
	books.GET("/:bookId/transactions/:id/attachments", listAttachmentsHandler())
	books.GET("/:bookId/attachments/:id", downloadAttachmentHandler())
	books.DELETE("/:bookId/attachments/:id", deleteAttachmentHandler())

	reportRoutes := books.Group("/:bookId/reports")
	reportRoutes.GET("/monthly-summary", monthlySummaryHandler())
	reportRoutes.GET("/category-summary", categorySummaryHandler())
	reportRoutes.GET("/daily-expense", dailyExpenseHandler())
	reportRoutes.GET("/dashboard", dashboardHandler())
	reportRoutes.GET("/export", exportSummaryHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Panic(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Start the expired session sweeper.
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	sweeper := workflow.NewSessionSweeper(db, logger)
	if minutes, err := strconv.Atoi(strings.TrimSpace(os.Getenv("SESSION_SWEEP_INTERVAL_MINUTES"))); err == nil && minutes > 0 {
		sweeper.PollInterval = time.Duration(minutes) * time.Minute
	}
	go sweeper.Run(sweeperCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/api")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelSweeper()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
