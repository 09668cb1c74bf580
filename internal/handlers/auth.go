package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/stockpilot/warehouse/internal/hash"
	"github.com/stockpilot/warehouse/internal/models"
	"github.com/stockpilot/warehouse/internal/mykafka"
)

const (
	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = time.Hour
)

type AuthHandler struct {
	DB          *gorm.DB
	JWTSecret   []byte
	Producer    *mykafka.Producer
	FrontendURL string
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req struct {
		Email         string `json:"email"`
		Password      string `json:"password"`
		Name          string `json:"name"`
		WarehouseName string `json:"warehouseName"`
	}

	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" {
		return errorJSON(c, http.StatusBadRequest, "email and password are required")
	}

	var existing models.User
	result := h.DB.Where("email = ?", req.Email).First(&existing)
	if result.Error == nil {
		return errorJSON(c, http.StatusBadRequest, "email already exists")
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return errorJSON(c, http.StatusInternalServerError, result.Error.Error())
	}

	passwordHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	user := models.User{
		Email:                    req.Email,
		PasswordHash:             passwordHash,
		Name:                     req.Name,
		WarehouseName:            req.WarehouseName,
		IsVerified:               false,
		VerificationToken:        uuid.NewString(),
		VerificationTokenExpires: time.Now().Add(verificationTokenTTL),
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	publishNotification(c, h.Producer, user.ID, map[string]interface{}{
		"type":    "verification_email",
		"user_id": user.ID,
		"email":   user.Email,
		"name":    user.Name,
		"token":   user.VerificationToken,
	})

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Registration successful. Please check your email to verify your account.",
	})
}

func (h *AuthHandler) Verify(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return errorJSON(c, http.StatusBadRequest, "missing verification token")
	}

	var user models.User
	err := h.DB.
		Where("verification_token = ? AND verification_token_expires > ?", token, time.Now()).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, http.StatusBadRequest, "invalid or expired verification token")
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	// Token is single-use: clearing it makes a replay miss the lookup above.
	updates := map[string]interface{}{
		"is_verified":                true,
		"verification_token":         "",
		"verification_token_expires": time.Time{},
	}
	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.Redirect(http.StatusFound, h.FrontendURL+"/login?verified=true")
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return errorJSON(c, http.StatusUnauthorized, "invalid login credentials")
	}
	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		return errorJSON(c, http.StatusUnauthorized, "invalid login credentials")
	}
	if !user.IsVerified {
		return errorJSON(c, http.StatusUnauthorized, "please verify your email before logging in")
	}

	token, err := SignToken(user.ID, h.JWTSecret)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user":  user,
		"token": token,
	})
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req struct {
		Email string `json:"email"`
	}

	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, http.StatusNotFound, "user not found")
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	user.ResetPasswordToken = uuid.NewString()
	user.ResetPasswordExpires = time.Now().Add(resetTokenTTL)
	if err := h.DB.Save(&user).Error; err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	publishNotification(c, h.Producer, user.ID, map[string]interface{}{
		"type":    "password_reset",
		"user_id": user.ID,
		"email":   user.Email,
		"name":    user.Name,
		"token":   user.ResetPasswordToken,
	})

	return c.JSON(http.StatusOK, echo.Map{"message": "Password reset email sent"})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	token := c.Param("token")

	var req struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if token == "" || req.Password == "" {
		return errorJSON(c, http.StatusBadRequest, "token and password are required")
	}

	var user models.User
	err := h.DB.
		Where("reset_password_token = ? AND reset_password_expires > ?", token, time.Now()).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errorJSON(c, http.StatusBadRequest, "invalid or expired reset token")
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	passwordHash, err := hash.HashPassword(req.Password)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	updates := map[string]interface{}{
		"password_hash":          passwordHash,
		"reset_password_token":   "",
		"reset_password_expires": time.Time{},
	}
	if err := h.DB.Model(&user).Updates(updates).Error; err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Password reset successful"})
}
