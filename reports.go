package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/moneybook_backend/config"
	"bitbucket.org/mmdatafocus/moneybook_backend/models/reports"
	"bitbucket.org/mmdatafocus/moneybook_backend/utils"
	"github.com/gin-gonic/gin"
)

func monthlySummaryHandler() gin.HandlerFunc {
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
		summary, err := reports.GetMonthlySummary(c.Request.Context(), bookId, from, to)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func categorySummaryHandler() gin.HandlerFunc {
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
		summary, err := reports.GetCategorySummary(c.Request.Context(), bookId, from, to)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func dailyExpenseHandler() gin.HandlerFunc {
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
		days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
		summary, err := reports.GetDailyExpenseSummary(c.Request.Context(), bookId, days)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func dashboardHandler() gin.HandlerFunc {
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
		dashboard, err := reports.GetDashboard(c.Request.Context(), bookId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, dashboard)
	}
}

func exportSummaryHandler() gin.HandlerFunc {
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
		f, err := reports.ExportSummaryExcel(c.Request.Context(), bookId, from, to)
		if err != nil {
			writeError(c, err)
			return
		}

		filename := fmt.Sprintf("summary_%d_%s.xlsx", bookId, time.Now().UTC().Format("20060102"))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename="+filename)
		if err := f.Write(c.Writer); err != nil {
			config.GetLogger().Error("failed to write export: " + err.Error())
		}
	}
}
