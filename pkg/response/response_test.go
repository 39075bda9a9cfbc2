package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set("request_id", "req-1")
	return c, rec
}

func TestSuccess_WritesEnvelope(t *testing.T) {
	c, rec := newContext()
	Success(c, 0, map[string]string{"status": "ok"}, "fine", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var got APIResponse[map[string]string]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "ok", got.Data["status"])
}

func TestAbort_StopsChain(t *testing.T) {
	c, rec := newContext()
	Abort(c, http.StatusUnauthorized, "missing access token", nil)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestError_DefaultsToBadRequest(t *testing.T) {
	c, rec := newContext()
	resp := Error[any](c, 0, "invalid payload", map[string]string{"email": "is required"})

	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
