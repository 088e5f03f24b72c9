package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	authdomain "github.com/kdrangari/msgtracker-api/internal/auth/domain"
	authRepo "github.com/kdrangari/msgtracker-api/internal/auth/repository"
	waUsecase "github.com/kdrangari/msgtracker-api/internal/whatsapp/usecase"
	"github.com/kdrangari/msgtracker-api/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&authdomain.User{}))

	wa := waUsecase.NewWhatsAppUsecase(nil, nil, nil, "verify-me")
	return NewHandler(authRepo.NewUserRepository(db), nil, wa, nil, metrics.NewNoopMetrics()).Engine()
}

func serve(r *gin.Engine, method, target, email string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := serve(newTestEngine(t), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMe_ResolvesUserFromHeader(t *testing.T) {
	w := serve(newTestEngine(t), http.MethodGet, "/api/me", "Ops@Example.com")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)
	assert.Contains(t, w.Body.String(), "ops@example.com")
}

func TestProtectedRoutesRequireUser(t *testing.T) {
	r := newTestEngine(t)
	for _, target := range []string{
		"/api/reports/overview",
		"/api/reports/events",
		"/api/gmail/status",
		"/api/gmail/auth/start",
		"/api/whatsapp/status",
	} {
		w := serve(r, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
}

func TestWhatsAppVerifyIsPublic(t *testing.T) {
	r := newTestEngine(t)

	w := serve(r, http.MethodGet, "/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=42", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())

	w = serve(r, http.MethodGet, "/api/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=42", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/reports/overview", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	newTestEngine(t).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-User-Email")
}

func TestMetricsRouteOnlyWhenEnabled(t *testing.T) {
	w := serve(newTestEngine(t), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
