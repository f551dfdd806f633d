package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	ErrorWithData(c, http.StatusConflict, 40030, "already claimed", gin.H{"retry_after_seconds": 60})

	assert.Equal(t, http.StatusConflict, w.Code)
	var body JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 40030, body.Code)
	assert.Equal(t, "already claimed", body.Message)
	assert.Equal(t, float64(60), body.Data.(map[string]interface{})["retry_after_seconds"])
}

func TestSanitizeAndPassword(t *testing.T) {
	assert.Equal(t, "Double Weekend", SanitizeText(` <b>Double</b> Weekend<script>x()</script> `))
	assert.NotContains(t, Sanitize(`<a href="javascript:alert(1)">hi</a>`), "javascript")

	hash, err := HashPassword("secret1")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "secret1"))
	assert.False(t, CheckPassword(hash, "secret2"))
}
