package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/qaforum/models"
	"github.com/cppla/qaforum/utils"
)

// PageViewRecorder counts successful GET page views per local day and path.
func PageViewRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method != http.MethodGet {
			return
		}
		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}

		path := c.Request.URL.Path
		if path == "/health" || strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/static/") {
			return
		}

		now := time.Now()
		// Atomic upsert to avoid duplicate key errors under concurrency
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}, {Name: "path"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": now}),
		}).Create(&models.PageView{Day: now.Format("2006-01-02"), Path: path, Count: 1}).Error
		if err != nil {
			utils.Sugar.Warnw("page view upsert failed", "path", path, "err", err)
		}
	}
}
