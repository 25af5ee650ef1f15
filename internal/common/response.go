package common

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// OK writes the uniform success envelope.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":      CodeSuccess,
		"message":   "ok",
		"data":      data,
		"timestamp": time.Now().UnixMilli(),
	})
}

// Fail writes the uniform error envelope with an explicit code.
func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":      code,
		"message":   msg,
		"data":      nil,
		"timestamp": time.Now().UnixMilli(),
	})
}

// FailErr maps an error to the envelope. AppErrors keep their code and
// message; anything else becomes a generic internal error so raw error
// strings never reach clients.
func FailErr(c *gin.Context, err error) {
	if ae, ok := AsAppError(err); ok {
		Fail(c, ae.HTTPStatus, ae.Code, ae.Message)
		return
	}
	Fail(c, http.StatusInternalServerError, CodeInternal, "internal error")
}
