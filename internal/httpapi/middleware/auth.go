package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nutrichat/nutrichat/internal/common"
	"github.com/nutrichat/nutrichat/internal/store/redisstore"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "user_id"

const sessionCookie = "session_token"

// SessionToken extracts the opaque session token from the Authorization
// header or the session cookie.
func SessionToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if v, err := c.Cookie(sessionCookie); err == nil {
		return v
	}
	return ""
}

// AuthRequired resolves the opaque session token against Redis and stashes
// the user id in the context.
func AuthRequired(sessions *redisstore.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c)
		if token == "" {
			common.Fail(c, http.StatusUnauthorized, common.CodeLoginRequired, "login required")
			c.Abort()
			return
		}

		uid, err := sessions.SessionUserID(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, redisstore.ErrNoSession) {
				common.Fail(c, http.StatusUnauthorized, common.CodeTokenInvalid, "session expired or invalid")
			} else {
				common.Fail(c, http.StatusInternalServerError, common.CodeInternal, "session store unavailable")
			}
			c.Abort()
			return
		}

		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// UserID reads the authenticated user id set by AuthRequired.
func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
