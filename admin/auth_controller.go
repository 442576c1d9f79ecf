package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/MOE349/tenmil-backend-sub001/middleware"
	"github.com/MOE349/tenmil-backend-sub001/models"
)

// AuthController handles admin authentication
type AuthController struct {
	db          *gorm.DB
	secret      string
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// NewAuthController creates a new auth controller
func NewAuthController(db *gorm.DB, secret string, rateLimiter *middleware.RateLimiter, logger *slog.Logger) *AuthController {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthController{db: db, secret: secret, rateLimiter: rateLimiter, logger: logger}
}

// LoginRequest is the login payload
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges admin credentials for an access token
// POST /api/v1/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	ip := c.ClientIP()

	var admin models.AdminUser
	if err := ac.db.Where("username = ? AND is_active = ?", req.Username, true).First(&admin).Error; err != nil {
		ac.logger.Warn("admin login failed", "username", req.Username, "reason", "user not found")
		ac.fail(c, ip)
		return
	}

	if !admin.CheckPassword(req.Password) {
		ac.logger.Warn("admin login failed", "username", req.Username, "reason", "invalid password")
		ac.fail(c, ip)
		return
	}

	token, expiresAt, err := middleware.IssueToken(ac.secret, admin.ID, admin.Username, admin.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	if ac.rateLimiter != nil {
		ac.rateLimiter.Succeed(ip)
	}

	// Update last login
	now := time.Now()
	ac.db.Model(&admin).Update("last_login_at", now)

	ac.logger.Info("admin logged in", "username", admin.Username)
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
	})
}

func (ac *AuthController) fail(c *gin.Context, ip string) {
	resp := gin.H{"error": "Invalid username or password"}
	if ac.rateLimiter != nil {
		ac.rateLimiter.Fail(ip)
		resp["remaining_attempts"] = ac.rateLimiter.Remaining(ip)
	}
	c.JSON(http.StatusUnauthorized, resp)
}
