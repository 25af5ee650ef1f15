package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) (*gin.Context, *http.Request) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	c.Request = req
	return c, req
}

func TestSessionTokenFromBearerHeader(t *testing.T) {
	c, req := testContext(t)
	req.Header.Set("Authorization", "Bearer tok-123")
	require.Equal(t, "tok-123", SessionToken(c))
}

func TestSessionTokenFromCookie(t *testing.T) {
	c, req := testContext(t)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "tok-456"})
	require.Equal(t, "tok-456", SessionToken(c))
}

func TestSessionTokenHeaderWinsOverCookie(t *testing.T) {
	c, req := testContext(t)
	req.Header.Set("Authorization", "Bearer header-tok")
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "cookie-tok"})
	require.Equal(t, "header-tok", SessionToken(c))
}

func TestSessionTokenAbsent(t *testing.T) {
	c, _ := testContext(t)
	require.Empty(t, SessionToken(c))
}
