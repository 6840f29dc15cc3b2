package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/apperr"
	"github.com/poste-inventory/backend/internal/auth"
	"github.com/poste-inventory/backend/internal/cache"
	"github.com/poste-inventory/backend/internal/database"
	"github.com/poste-inventory/backend/internal/models"
)

var roles = []string{models.RoleAdmin, models.RoleUsuario, models.RoleCadastrador}

func invalidBody(err error) *apperr.Error {
	return &apperr.Error{
		Status:  http.StatusBadRequest,
		Code:    apperr.CodeValidation,
		Message: "invalid request body",
		Err:     err,
	}
}

func invalidEmail() *apperr.Error {
	return apperr.Validation(apperr.CodeInvalidEmail, "invalid email format")
}

func invalidRole(role string) *apperr.Error {
	return apperr.Validation(apperr.CodeInvalidRole, "invalid role "+role).With("allowed", roles)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login handles exchanging credentials for a token.
// @Summary Login
// @Description Verify email and password and issue a bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body models.LoginRequest true "Credentials"
// @Success 200 {object} models.Response
// @Failure 400 {object} apperr.Envelope
// @Failure 401 {object} apperr.Envelope
// @Router /api/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidBody(err))
		return
	}

	var missing []string
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	if req.Senha == "" {
		missing = append(missing, "senha")
	}
	if len(missing) > 0 {
		h.fail(c, apperr.MissingFields(missing))
		return
	}

	invalid := apperr.New(http.StatusUnauthorized, apperr.CodeInvalidCredentials, "invalid email or password")

	ctx := c.Request.Context()
	user, err := h.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if database.KindOf(err) == database.KindNotFound {
			h.fail(c, invalid)
			return
		}
		h.fail(c, apperr.Internal(err))
		return
	}

	if !auth.CheckPasswordHash(req.Senha, user.SenhaHash) {
		h.logger.Info("Rejected login", zap.String("user_id", user.ID))
		h.fail(c, invalid)
		return
	}

	token, _, err := h.tokens.Issue(user.ID, user.Role)
	if err != nil {
		h.fail(c, apperr.Internal(err))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieToken, token, int(h.tokens.TTL().Seconds()), "/", "", h.secureCookies, true)

	c.JSON(http.StatusOK, models.OK(models.LoginResponse{Token: token, Usuario: *user}))
}

// CountUsers handles counting registered users.
// @Summary Count users
// @Tags users
// @Produce json
// @Success 200 {object} models.Response
// @Router /api/count-usuarios [get]
func (h *Handler) CountUsers(c *gin.Context) {
	n, err := h.userCount(c)
	if err != nil {
		h.fail(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, models.Count(n))
}

func (h *Handler) userCount(c *gin.Context) (int64, error) {
	ctx := c.Request.Context()
	n, gen, ok := h.cache.GetCount(ctx, cache.KeyUserCount)
	if ok {
		return n, nil
	}

	n, err := h.users.Count(ctx)
	if err != nil {
		return 0, err
	}
	_ = h.cache.SetCount(ctx, cache.KeyUserCount, gen, n)
	return n, nil
}

// CreateUser handles registering a new user.
// @Summary Register user
// @Description Admin only. All fields are required.
// @Tags users
// @Accept json
// @Produce json
// @Param user body models.CreateUserRequest true "User data"
// @Success 201 {object} models.Response
// @Failure 400 {object} apperr.Envelope
// @Failure 401 {object} apperr.Envelope
// @Failure 403 {object} apperr.Envelope
// @Router /api/cadastro-usuarios [post]
func (h *Handler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidBody(err))
		return
	}

	req.Nome = strings.TrimSpace(req.Nome)
	req.Email = normalizeEmail(req.Email)
	req.Role = strings.TrimSpace(req.Role)

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"nome", req.Nome},
		{"email", req.Email},
		{"senha", req.Senha},
		{"role", req.Role},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		h.fail(c, apperr.MissingFields(missing))
		return
	}

	if !models.ValidEmail(req.Email) {
		h.fail(c, invalidEmail())
		return
	}
	if !models.ValidRole(req.Role) {
		h.fail(c, invalidRole(req.Role))
		return
	}

	hash, err := auth.HashPassword(req.Senha)
	if err != nil {
		h.fail(c, apperr.Internal(err))
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.Create(ctx, &models.User{
		Nome:      req.Nome,
		Email:     req.Email,
		SenhaHash: hash,
		Role:      req.Role,
	})
	if err != nil {
		h.fail(c, storeError(err, "usuario"))
		return
	}

	h.invalidateUsers(c)
	c.JSON(http.StatusCreated, models.OK(user))
}

// ListUsers handles listing users, or counting them with ?count=true.
// @Summary List users
// @Description Admin only
// @Tags users
// @Produce json
// @Param count query bool false "Return only the count"
// @Success 200 {object} models.Response
// @Router /api/listar-usuarios [get]
func (h *Handler) ListUsers(c *gin.Context) {
	if c.Query("count") == "true" {
		h.CountUsers(c)
		return
	}

	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.fail(c, apperr.Internal(err))
		return
	}
	if users == nil {
		users = []models.User{}
	}

	c.JSON(http.StatusOK, models.OK(users))
}

// UpdateUser handles editing a user. At least one field must be present.
// @Summary Edit user
// @Description Admin only
// @Tags users
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param user body models.UpdateUserRequest true "Fields to change"
// @Success 200 {object} models.Response
// @Failure 400 {object} apperr.Envelope
// @Failure 404 {object} apperr.Envelope
// @Router /api/editar-usuario/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	id := c.Param("id")

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidBody(err))
		return
	}
	if req.Empty() {
		h.fail(c, apperr.New(http.StatusBadRequest, apperr.CodeMissingFields,
			"at least one of nome, email, senha, role is required").
			With("fields", []string{"nome", "email", "senha", "role"}))
		return
	}

	changes := &models.UserChanges{}
	if req.Nome != nil {
		nome := strings.TrimSpace(*req.Nome)
		if nome == "" {
			h.fail(c, apperr.Validation(apperr.CodeValidation, "nome must not be empty"))
			return
		}
		changes.Nome = &nome
	}
	if req.Email != nil {
		email := normalizeEmail(*req.Email)
		if !models.ValidEmail(email) {
			h.fail(c, invalidEmail())
			return
		}
		changes.Email = &email
	}
	if req.Role != nil {
		role := strings.TrimSpace(*req.Role)
		if !models.ValidRole(role) {
			h.fail(c, invalidRole(role))
			return
		}
		changes.Role = &role
	}
	if req.Senha != nil {
		if *req.Senha == "" {
			h.fail(c, apperr.Validation(apperr.CodeValidation, "senha must not be empty"))
			return
		}
		hash, err := auth.HashPassword(*req.Senha)
		if err != nil {
			h.fail(c, apperr.Internal(err))
			return
		}
		changes.SenhaHash = &hash
	}

	user, err := h.users.Update(c.Request.Context(), id, changes)
	if err != nil {
		h.fail(c, storeError(err, "usuario"))
		return
	}

	h.invalidateUsers(c)
	c.JSON(http.StatusOK, models.OK(user))
}

// DeleteUser handles deleting a user. Admins cannot delete themselves.
// @Summary Delete user
// @Description Admin only
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} models.Response
// @Failure 403 {object} apperr.Envelope
// @Failure 404 {object} apperr.Envelope
// @Router /api/deletar-usuario/{id} [delete]
func (h *Handler) DeleteUser(c *gin.Context) {
	id := c.Param("id")

	identity, ok := auth.IdentityFrom(c)
	if !ok {
		h.fail(c, apperr.MissingAuth())
		return
	}
	if sameID(identity.ID, id) {
		h.fail(c, apperr.Forbidden(apperr.CodeSelfDelete, "admins cannot delete their own account"))
		return
	}

	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, storeError(err, "usuario"))
		return
	}

	h.invalidateUsers(c)
	// Poles of the deleted user now carry a null usuarioId.
	h.invalidatePostes(c)

	c.JSON(http.StatusOK, models.Message("usuario deleted"))
}

// sameID compares two ids by uuid value, so case and brace variants match.
func sameID(a, b string) bool {
	ua, errA := uuid.Parse(a)
	ub, errB := uuid.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ua == ub
}

func (h *Handler) invalidateUsers(c *gin.Context) {
	if err := h.cache.InvalidateUsers(c.Request.Context()); err != nil {
		h.logger.Warn("Failed to invalidate user cache", zap.Error(err))
	}
}
