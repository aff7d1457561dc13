package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-bot/internal/api/dto"
	"github.com/spec-kit/ticket-bot/internal/auth"
	"github.com/spec-kit/ticket-bot/internal/config"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util"
)

// AuthHandler issues operator tokens for the ops API.
type AuthHandler struct {
	tokens *auth.TokenManager
	ops    config.OpsConfig
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(tokens *auth.TokenManager, ops config.OpsConfig) *AuthHandler {
	return &AuthHandler{tokens: tokens, ops: ops}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Username == "" || req.Password == "" {
		return apperrors.NewValidationError("username and password required", nil)
	}
	if h.ops.OperatorPasswordHash == "" {
		return apperrors.NewConfigurationError("operator credentials not configured")
	}
	if req.Username != h.ops.OperatorUser {
		return apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(h.ops.OperatorPasswordHash, req.Password); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := h.tokens.GenerateToken(req.Username)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt.UnixMilli(),
	}})
}
