package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/identity-api/internal/domain/entity"
	"github.com/yourusername/identity-api/internal/handler/dto"
	"github.com/yourusername/identity-api/internal/middleware"
	"github.com/yourusername/identity-api/internal/service"
)

// ContextKeyUserIDParam: ключ, под которым ExtractUintParam сохраняет :id
const ContextKeyUserIDParam = "user_id_param"

// UserProfiles: операции с профилями (service.UserService)
type UserProfiles interface {
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	List(ctx context.Context, page, pageSize int) ([]entity.User, error)
	UpdateProfile(ctx context.Context, email string, update service.ProfileUpdate) (*entity.User, error)
	UpdateUser(ctx context.Context, id uint, update service.ProfileUpdate) (*entity.User, error)
}

// UserHandler обрабатывает запросы, связанные с пользователями
type UserHandler struct {
	users UserProfiles
}

// NewUserHandler создает новый обработчик пользователей
func NewUserHandler(users UserProfiles) *UserHandler {
	return &UserHandler{
		users: users,
	}
}

// GetMe возвращает пользователя из токена
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.users.GetByEmail(c.Request.Context(), c.GetString(middleware.ContextKeyEmail))
	if err != nil {
		handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserDTO(user))
}

// UpdateMe обновляет профиль текущего пользователя
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), c.GetString(middleware.ContextKeyEmail), profileUpdate(req))
	if err != nil {
		handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserDTO(user))
}

// ListUsers возвращает страницу пользователей (только для администраторов)
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if err != nil || pageSize < 1 {
		pageSize = 20 // Значение по умолчанию
	} else if pageSize > 100 {
		pageSize = 100 // Максимальный лимит
	}

	users, err := h.users.List(c.Request.Context(), page, pageSize)
	if err != nil {
		handleAuthError(c, err)
		return
	}

	resp := dto.PaginatedUsersResponse{
		Users:   make([]dto.UserDTO, 0, len(users)),
		Page:    page,
		PerPage: pageSize,
	}
	for i := range users {
		resp.Users = append(resp.Users, dto.NewUserDTO(&users[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// UpdateUser обновляет профиль пользователя по :id (только для администраторов)
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	id := c.GetUint(ContextKeyUserIDParam)
	user, err := h.users.UpdateUser(c.Request.Context(), id, profileUpdate(req))
	if err != nil {
		handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewUserDTO(user))
}

func profileUpdate(req dto.UpdateProfileRequest) service.ProfileUpdate {
	return service.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
}
