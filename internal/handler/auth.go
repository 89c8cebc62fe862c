package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/voicegate/stt-gateway-api/internal/domain/user"
	"github.com/voicegate/stt-gateway-api/internal/handler/dto"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/service"
)

type AuthHandler struct {
	credentials *service.CredentialService
	logger      *zap.Logger
}

func NewAuthHandler(credentials *service.CredentialService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		logger:      logger.Named("AuthHandler"),
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind login request", zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: %v", ierr.ErrValidation, err))
		return
	}

	token, u, err := h.credentials.Login(c.Request.Context(), req.UserID, req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("User logged in via handler", zap.String("user_id", req.UserID))
	c.JSON(http.StatusOK, dto.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		User:        toUserResponse(u),
	})
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req dto.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind signup request", zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: %v", ierr.ErrValidation, err))
		return
	}

	u, err := h.credentials.Register(c.Request.Context(), req.UserID, req.Email, req.Name, req.UserType, req.Password, req.PhoneNumber)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.logger.Info("User registered via handler", zap.String("user_id", u.UserID))
	c.JSON(http.StatusCreated, toUserResponse(u))
}

func toUserResponse(u *user.User) dto.UserResponse {
	return dto.UserResponse{
		UserUUID:  u.UserUUID,
		UserID:    u.UserID,
		Email:     u.Email,
		Name:      u.Name,
		UserType:  u.UserType,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}
