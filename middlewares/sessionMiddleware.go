package middlewares

import (
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the token header into a user and stashes both
// on the request context. Requests without a token pass through untouched;
// handlers that need a user reject them later. A token that resolves
// nowhere is rejected here so an expired session never reaches a handler.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}

		userId := 0
		value, exists, err := config.GetRedisValue(models.SessionCacheKey(token))
		if err == nil && exists {
			userId, _ = strconv.Atoi(value)
		}
		if userId == 0 {
			session, err := models.LookupSession(c.Request.Context(), token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			userId = session.UserId
		}

		ctx := utils.SetTokenInContext(c.Request.Context(), token)
		ctx = utils.SetUserIdInContext(ctx, userId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
