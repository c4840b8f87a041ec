package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

var testValidator = stubValidator{
	"prof-token":    {UserID: "prof-1", Role: models.RoleProfessor},
	"student-token": {UserID: "stu-1", Role: models.RoleStudent},
}

func perform(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	r := gin.New()
	r.GET("/me", JWT(testValidator), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentClaims(c).UserID)
	})

	w := perform(r, http.MethodGet, "/me", "prof-token")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "prof-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/me", "bogus").Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQueryJWT(t *testing.T) {
	r := gin.New()
	r.GET("/ws", QueryJWT(testValidator), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentClaims(c).UserID)
	})

	w := perform(r, http.MethodGet, "/ws?token=student-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stu-1", w.Body.String())

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ws", "prof-token").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/ws", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/ws?token=nope", "").Code)
}

func TestOptionalJWT(t *testing.T) {
	r := gin.New()
	r.GET("/x", OptionalJWT(testValidator), func(c *gin.Context) {
		if CurrentClaims(c) == nil {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, "user")
	})

	assert.Equal(t, "anonymous", perform(r, http.MethodGet, "/x", "").Body.String())
	assert.Equal(t, "anonymous", perform(r, http.MethodGet, "/x", "bogus").Body.String())
	assert.Equal(t, "user", perform(r, http.MethodGet, "/x", "prof-token").Body.String())
}

func TestRBAC(t *testing.T) {
	r := gin.New()
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/courses", JWT(testValidator), RequireRoles(models.RoleProfessor, models.RoleAdmin), ok)
	r.GET("/students/:studentId/attendance", JWT(testValidator), RBAC("PROFESSOR", "ADMIN", "SELF"), ok)
	r.GET("/open", RBAC("ADMIN"), ok)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/courses", "prof-token").Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/courses", "student-token").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/students/stu-1/attendance", "student-token").Code)
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/students/stu-2/attendance", "student-token").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/open", "").Code)
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func TestAudit(t *testing.T) {
	repo := &auditStub{}
	r := gin.New()
	r.POST("/sessions/:id/end", JWT(testValidator), Audit(repo, "SESSION_END", "session", "id"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/fail/:id", JWT(testValidator), Audit(repo, "FAIL", "session", "id"), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})

	perform(r, http.MethodPost, "/sessions/s-1/end", "prof-token")
	perform(r, http.MethodPost, "/fail/s-2", "prof-token")

	require.Len(t, repo.logs, 1)
	entry := repo.logs[0]
	assert.Equal(t, "SESSION_END", entry.Action)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "s-1", *entry.ResourceID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "prof-1", *entry.UserID)
	assert.Contains(t, string(entry.NewValues), `"status":200`)
}

func TestOptionalJWTAttributesAudit(t *testing.T) {
	repo := &auditStub{}
	r := gin.New()
	r.GET("/export/download/:token", OptionalJWT(testValidator), Audit(repo, "EXPORT_DOWNLOAD", "export"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	perform(r, http.MethodGet, "/export/download/abc", "prof-token")
	perform(r, http.MethodGet, "/export/download/abc", "")

	require.Len(t, repo.logs, 2)
	require.NotNil(t, repo.logs[0].UserID)
	assert.Equal(t, "prof-1", *repo.logs[0].UserID)
	assert.Nil(t, repo.logs[1].UserID)
	assert.Equal(t, "EXPORT_DOWNLOAD", repo.logs[1].Action)
}

type observerStub struct {
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, path)
}

func TestMetrics(t *testing.T) {
	observer := &observerStub{}
	r := gin.New()
	r.Use(Metrics(observer, "/metrics"))
	r.GET("/courses/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/courses/abc", "")
	perform(r, http.MethodGet, "/metrics", "")
	perform(r, http.MethodGet, "/nowhere", "")

	assert.Equal(t, []string{"/courses/:id", "unmatched"}, observer.paths)
}

func TestCacheMeta(t *testing.T) {
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/courses", func(c *gin.Context) {
		SetCacheHit(c, true)
		assert.Equal(t, true, ExtractMeta(c)[cacheHitKey])
		c.Status(http.StatusOK)
	})

	w := perform(r, http.MethodGet, "/courses", "")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
}
