package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ServiceAuth(secret, zap.NewNop()))
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CallerKey))
	})
	return r
}

func do(r http.Handler, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServiceAuth(t *testing.T) {
	secret := []byte("s3cret")
	r := newRouter(secret)

	token, err := IssueServiceToken(secret, "ingest-api", time.Minute)
	require.NoError(t, err)

	w := do(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ingest-api", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, token).Code)

	other, err := IssueServiceToken([]byte("other"), "ingest-api", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "Bearer "+other).Code)

	expired, err := IssueServiceToken(secret, "ingest-api", -time.Minute)
	require.NoError(t, err)
	w = do(r, "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestServiceAuth_Disabled(t *testing.T) {
	assert.Equal(t, http.StatusOK, do(newRouter(nil), "").Code)
}
