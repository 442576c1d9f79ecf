package admin

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MOE349/tenmil-backend-sub001/middleware"
	"github.com/MOE349/tenmil-backend-sub001/models"
)

func setupAuth(t *testing.T) (*gin.Engine, *middleware.RateLimiter) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := models.MigrateAdminModels(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := models.SeedAdminUser(db, "admin", "hunter22"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rl := middleware.NewRateLimiter(3, time.Minute, time.Minute)
	ac := NewAuthController(db, "secret", rl, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := gin.New()
	r.POST("/login", middleware.LoginRateLimitMiddleware(rl), ac.Login)
	return r, rl
}

func postLogin(r *gin.Engine, username, password string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.7:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLogin_Success(t *testing.T) {
	r, _ := setupAuth(t)

	w := postLogin(r, "admin", "hunter22")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := middleware.ParseToken("secret", resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Username != "admin" || claims.Role != "superadmin" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestLogin_WrongPasswordAndLockout(t *testing.T) {
	r, _ := setupAuth(t)

	for i := 0; i < 3; i++ {
		if w := postLogin(r, "admin", "wrong"); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, w.Code)
		}
	}
	if w := postLogin(r, "admin", "hunter22"); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected lockout, got %d", w.Code)
	}
}

func TestLogin_BadRequest(t *testing.T) {
	r, _ := setupAuth(t)
	if w := postLogin(r, "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
