package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/roshni/backend/internal/config"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/middleware"
	"github.com/roshni/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthController struct {
	db  *gorm.DB
	cfg config.AuthConfig
}

func NewAuthController(db *gorm.DB, cfg config.AuthConfig) *AuthController {
	return &AuthController{db: db, cfg: cfg}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required,min=8"`
	FullName string  `json:"full_name" binding:"required"`
	Phone    *string `json:"phone"`
}

type AuthResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        models.User `json:"user"`
}

func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var user models.User
	err := ac.db.WithContext(c.Request.Context()).Preload("Role").
		Where("email = ?", strings.ToLower(req.Email)).First(&user).Error
	if err != nil {
		detail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logger.WithUser(user.UserID.String()).Warn("Failed login attempt")
		detail(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	ac.respondWithToken(c, http.StatusOK, &user)
}

func (ac *AuthController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	email := strings.ToLower(req.Email)

	// Check if user already exists
	var existing int64
	if err := ac.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("email = ?", email).Count(&existing).Error; err == nil && existing > 0 {
		detail(c, http.StatusConflict, "User already exists")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	user := models.User{
		Email:        email,
		PasswordHash: string(hashedPassword),
		FullName:     req.FullName,
		Phone:        req.Phone,
		RoleID:       models.RoleIDCivilian,
	}
	if err := ac.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			detail(c, http.StatusConflict, "User already exists")
			return
		}
		logger.WithError(err, "auth").Error("Failed to create user")
		detail(c, http.StatusInternalServerError, "Failed to create user")
		return
	}

	ac.respondWithToken(c, http.StatusCreated, &user)
}

// Me returns the user behind the current token.
func (ac *AuthController) Me(c *gin.Context) {
	user, ok := loadCurrentUser(c, ac.db)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, user)
}

// Logout is an acknowledgement only; tokens are stateless and expire on their own.
func (ac *AuthController) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (ac *AuthController) RefreshToken(c *gin.Context) {
	user, ok := loadCurrentUser(c, ac.db)
	if !ok {
		return
	}
	ac.respondWithToken(c, http.StatusOK, user)
}

func (ac *AuthController) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, expiresAt, err := middleware.IssueToken(ac.cfg.JWTSecret, ac.cfg.TokenTTL, user)
	if err != nil {
		logger.WithError(err, "auth").Error("Failed to sign token")
		detail(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	c.JSON(status, AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		User:        *user,
	})
}

// loadCurrentUser fetches the authenticated user with its role, answering
// 401 or 404 itself when that is not possible.
func loadCurrentUser(c *gin.Context, conn *gorm.DB) (*models.User, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		detail(c, http.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	var user models.User
	err := conn.WithContext(c.Request.Context()).Preload("Role").First(&user, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			detail(c, http.StatusNotFound, "User not found")
		} else {
			detail(c, http.StatusInternalServerError, "Failed to load user")
		}
		return nil, false
	}
	return &user, true
}
