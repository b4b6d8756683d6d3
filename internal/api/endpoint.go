package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"pkg.mon.icu/oracle/internal/storage"
	"pkg.mon.icu/oracle/internal/storage/entity"
	"pkg.mon.icu/oracle/internal/util"
)

const maxDeadLetters = 100

// registerGetHealth GET /health
func (a *API) registerGetHealth() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// registerGetRecord GET <path> where path ends with /:id
func registerGetRecord[R entity.Record, M any](a *API, path string, repo storage.Repository[R], toModel func(R) M) {
	a.router.GET(path, func(c *gin.Context) {
		var param struct {
			ID string `uri:"id" binding:"required"`
		}
		if err := c.ShouldBindUri(&param); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := util.ParseSnowflake(param.ID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		r, ok, err := repo.Read(c.Request.Context(), id)
		switch {
		case err != nil && storage.IsRetryable(err):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		case !ok:
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		default:
			c.JSON(http.StatusOK, toModel(r))
		}
	})
}

// registerGetDeadLetters GET /deadletters?limit=n
func (a *API) registerGetDeadLetters() {
	a.router.GET("/deadletters", func(c *gin.Context) {
		if a.deadLetters == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "dead letters are disabled"})
			return
		}

		var param struct {
			Limit int64 `form:"limit" binding:"min=0,max=100"`
		}
		if err := c.ShouldBindQuery(&param); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if param.Limit == 0 {
			param.Limit = maxDeadLetters
		}

		dls, err := a.deadLetters.DeadLetters(c.Request.Context(), param.Limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, dls)
	})
}
