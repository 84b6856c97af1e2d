package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/roshni/backend/internal/logger"
	"github.com/roshni/backend/internal/middleware"
	"github.com/roshni/backend/internal/models"
	"gorm.io/gorm"
)

type UserController struct {
	db *gorm.DB
}

func NewUserController(db *gorm.DB) *UserController {
	return &UserController{db: db}
}

type UpdateProfileRequest struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
}

type OnboardingRequest struct {
	FullName string  `json:"full_name" binding:"required"`
	Phone    *string `json:"phone"`
}

type UpdateUserRoleRequest struct {
	Role models.RoleName `json:"role" binding:"required"`
}

func (uc *UserController) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, ok := loadCurrentUser(c, uc.db)
	if !ok {
		return
	}

	// Update fields if provided
	if req.FullName != nil && strings.TrimSpace(*req.FullName) != "" {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}

	if err := uc.db.WithContext(c.Request.Context()).Omit("Role").Save(user).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to update user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// CompleteOnboarding records the remaining profile fields after sign-up.
func (uc *UserController) CompleteOnboarding(c *gin.Context) {
	var req OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	user, ok := loadCurrentUser(c, uc.db)
	if !ok {
		return
	}
	if user.OnboardingCompleted {
		detail(c, http.StatusBadRequest, "Onboarding already completed")
		return
	}

	user.FullName = req.FullName
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	user.OnboardingCompleted = true
	if err := uc.db.WithContext(c.Request.Context()).Omit("Role").Save(user).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to update user")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (uc *UserController) GetUsers(c *gin.Context) {
	var users []models.User

	page := intQuery(c, "page", 1, 0)
	limit := intQuery(c, "limit", 10, 100)
	search := strings.ToLower(strings.TrimSpace(c.Query("search")))

	query := uc.db.WithContext(c.Request.Context()).Model(&models.User{})
	if search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to fetch users")
		return
	}

	err := query.Preload("Role").Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).Find(&users).Error
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to fetch users")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// UpdateUserRole changes another user's role. Commanders cannot demote
// themselves, so at least one commander always remains.
func (uc *UserController) UpdateUserRole(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req UpdateUserRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var roleID int
	switch req.Role {
	case models.RoleCivilian:
		roleID = models.RoleIDCivilian
	case models.RoleResponder:
		roleID = models.RoleIDResponder
	case models.RoleCommander:
		roleID = models.RoleIDCommander
	default:
		detail(c, http.StatusBadRequest, "Invalid role. Must be one of: civilian, responder, commander")
		return
	}

	if currentID, _ := middleware.CurrentUserID(c); currentID == id {
		detail(c, http.StatusBadRequest, "Cannot change your own role")
		return
	}

	var user models.User
	if err := uc.db.WithContext(c.Request.Context()).First(&user, "user_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			detail(c, http.StatusNotFound, "User not found")
		} else {
			detail(c, http.StatusInternalServerError, "Failed to fetch user")
		}
		return
	}

	user.RoleID = roleID
	if err := uc.db.WithContext(c.Request.Context()).Model(&user).Update("role_id", roleID).Error; err != nil {
		detail(c, http.StatusInternalServerError, "Failed to update user role")
		return
	}
	logger.WithUser(id.String()).WithField("role", req.Role).Info("User role updated")

	c.JSON(http.StatusOK, gin.H{
		"message": "User role updated successfully",
		"user":    user,
	})
}
