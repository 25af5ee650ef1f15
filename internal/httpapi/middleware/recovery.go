package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nutrichat/nutrichat/internal/common"
)

// Recovery converts panics into the uniform error envelope instead of a
// bare 500.
func Recovery(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"path":       c.Request.URL.Path,
					"method":     c.Request.Method,
					"request_id": c.GetString("request_id"),
					"panic":      r,
				}).Error("handler panicked")
				common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
