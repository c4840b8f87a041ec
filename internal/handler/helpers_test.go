package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/middleware"
	"github.com/noah-isme/attendease-api/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type responseEnvelope struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Meta    map[string]interface{} `json:"meta"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// testRouter returns an engine that attaches claims for role/userID when role is non-empty.
func testRouter(role models.UserRole, userID string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.WithResponseMeta())
	if role != "" {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: role, Email: userID + "@example.edu"})
			c.Next()
		})
	}
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		switch v := body.(type) {
		case string:
			reader = bytes.NewReader([]byte(v))
		default:
			payload, _ := json.Marshal(v)
			reader = bytes.NewReader(payload)
		}
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}
