package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(secret string) *gin.Engine {
	r := gin.New()
	r.GET("/secure", JWTAuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString(ContextUsername)})
	})
	return r
}

func TestIssueAndParseToken(t *testing.T) {
	token, expiresAt, err := IssueToken("secret", 7, "admin", "superadmin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expiresAt) < 23*time.Hour {
		t.Errorf("unexpected expiry %v", expiresAt)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "7" || claims.Username != "admin" || claims.Role != "superadmin" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if _, err := ParseToken("other", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
	})
	signed, _ := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := ParseToken("secret", signed); err == nil {
		t.Error("expected unsigned token to be rejected")
	}
}

func TestJWTAuthMiddleware(t *testing.T) {
	r := protectedRouter("secret")
	token, _, _ := IssueToken("secret", 1, "admin", "admin")

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing header", "/secure", "", http.StatusUnauthorized},
		{"bad format", "/secure", "Token abc", http.StatusUnauthorized},
		{"bad token", "/secure", "Bearer abc", http.StatusUnauthorized},
		{"bearer", "/secure", "Bearer " + token, http.StatusOK},
		{"query param", "/secure?token=" + token, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("got %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, time.Minute)

	for i := 0; i < 3; i++ {
		if allowed, _, _ := rl.Check("1.2.3.4"); !allowed {
			t.Fatalf("attempt %d should be allowed", i)
		}
		rl.Fail("1.2.3.4")
	}
	if allowed, _, wait := rl.Check("1.2.3.4"); allowed || wait <= 0 {
		t.Errorf("expected lockout, got allowed=%v wait=%v", allowed, wait)
	}
	if rl.Remaining("5.6.7.8") != 3 {
		t.Error("other IPs should be unaffected")
	}

	rl.Succeed("1.2.3.4")
	if allowed, _, _ := rl.Check("1.2.3.4"); !allowed {
		t.Error("successful login should clear attempts")
	}
}

func TestRateLimiter_WindowAndLockExpire(t *testing.T) {
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute, 5*time.Minute)
	rl.now = func() time.Time { return now }

	rl.Fail("10.0.0.1")
	if rl.Remaining("10.0.0.1") != 1 {
		t.Fatalf("expected 1 attempt left, got %d", rl.Remaining("10.0.0.1"))
	}
	now = now.Add(2 * time.Minute)
	if rl.Remaining("10.0.0.1") != 2 {
		t.Error("expected failures to be forgotten after the window")
	}

	rl.Fail("10.0.0.1")
	rl.Fail("10.0.0.1")
	now = now.Add(2 * time.Minute)
	if allowed, _, wait := rl.Check("10.0.0.1"); allowed || wait != 3*time.Minute {
		t.Errorf("expected lockout with 3m left, got allowed=%v wait=%v", allowed, wait)
	}
	now = now.Add(4 * time.Minute)
	if allowed, remaining, _ := rl.Check("10.0.0.1"); !allowed || remaining != 2 {
		t.Errorf("expected lock to expire, got allowed=%v remaining=%d", allowed, remaining)
	}
}

func TestLoginRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, time.Minute)
	rl.Fail("192.0.2.1")

	r := gin.New()
	r.POST("/login", LoginRateLimitMiddleware(rl), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
