package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"user-portal/internal/auth"
	"user-portal/internal/domain"
	"user-portal/internal/repository"
	"user-portal/internal/service"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users  service.UserService
	tokens *auth.TokenManager
	logger *logrus.Logger
}

func NewHandler(users service.UserService, tokens *auth.TokenManager, logger *logrus.Logger) *Handler {
	return &Handler{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.POST("/auth/login", h.login)
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})

		authed := api.Group("", authRequired(h.tokens))
		{
			authed.GET("/auth/me", h.me)

			admin := authed.Group("/users", requireRole(domain.RoleAdmin))
			{
				admin.GET("", h.listUsers)
				admin.POST("", h.createUser)
				admin.GET("/report", h.report)
				admin.PUT("/:id", h.updateUser)
				admin.DELETE("/:id", h.deleteUser)
			}
		}
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Email and password are required"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid credentials"})
			return
		}
		h.serverError(c, err)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		h.serverError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "role": user.Role})
}

func (h *Handler) me(c *gin.Context) {
	identity, ok := IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "No token, authorization denied"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Token is not valid"})
			return
		}
		h.serverError(c, err)
		return
	}

	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(users[i])
	}
	c.JSON(http.StatusOK, resp)
}

type createUserRequest struct {
	Username string      `json:"username" binding:"required"`
	Email    string      `json:"email" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Role     domain.Role `json:"role"`
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Please provide all required fields"})
		return
	}

	identity, _ := IdentityFromContext(c)
	user, err := h.users.Create(c.Request.Context(), identity.UserID, service.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		h.writeUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, userToResponse(*user))
}

type updateUserRequest struct {
	Username *string      `json:"username"`
	Email    *string      `json:"email"`
	Role     *domain.Role `json:"role"`
	Password *string      `json:"password"`
}

func (h *Handler) updateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	user, err := h.users.Update(c.Request.Context(), c.Param("id"), service.UpdateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
		Password: req.Password,
	})
	if err != nil {
		h.writeUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, userToResponse(*user))
}

func (h *Handler) deleteUser(c *gin.Context) {
	identity, _ := IdentityFromContext(c)

	// the resolved token subject decides the self-delete guard, never the body
	if err := h.users.Delete(c.Request.Context(), identity.UserID, c.Param("id")); err != nil {
		h.writeUserError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func (h *Handler) report(c *gin.Context) {
	rows, err := h.users.Report(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}

	resp := make([]ReportRowResponse, len(rows))
	for i := range rows {
		resp[i] = reportRowToResponse(rows[i])
	}
	c.JSON(http.StatusOK, resp)
}

// writeUserError maps expected account errors to stable client messages.
func (h *Handler) writeUserError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrDuplicateIdentity):
		c.JSON(http.StatusBadRequest, gin.H{"message": "User already exists"})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
	case errors.Is(err, service.ErrSelfDelete):
		c.JSON(http.StatusForbidden, gin.H{"message": "You cannot delete your own account"})
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		h.serverError(c, err)
	}
}

func (h *Handler) serverError(c *gin.Context, err error) {
	h.logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Server error"})
}

type UserResponse struct {
	ID         string      `json:"id"`
	Username   string      `json:"username"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	CreatedBy  string      `json:"created_by,omitempty"`
	CreatedAt  string      `json:"created_at"`
	UpdatedAt  string      `json:"updated_at"`
	LastActive *string     `json:"last_active,omitempty"`
}

type ReportRowResponse struct {
	ID           string      `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	Role         domain.Role `json:"role"`
	CreatedAt    string      `json:"created_at"`
	LastActive   *string     `json:"last_active,omitempty"`
	DaysInactive *int        `json:"days_inactive"`
}

func userToResponse(user domain.User) UserResponse {
	resp := UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		CreatedBy: user.CreatedBy,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
	if user.LastActive != nil && !user.LastActive.IsZero() {
		v := user.LastActive.Format(time.RFC3339)
		resp.LastActive = &v
	}
	return resp
}

func reportRowToResponse(row service.ReportRow) ReportRowResponse {
	resp := ReportRowResponse{
		ID:           row.User.ID,
		Username:     row.User.Username,
		Email:        row.User.Email,
		Role:         row.User.Role,
		CreatedAt:    row.User.CreatedAt.Format(time.RFC3339),
		DaysInactive: row.DaysInactive,
	}
	if row.User.LastActive != nil && !row.User.LastActive.IsZero() {
		v := row.User.LastActive.Format(time.RFC3339)
		resp.LastActive = &v
	}
	return resp
}
