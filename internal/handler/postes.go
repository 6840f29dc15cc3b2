package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/poste-inventory/backend/internal/apperr"
	"github.com/poste-inventory/backend/internal/cache"
	"github.com/poste-inventory/backend/internal/models"
	"github.com/poste-inventory/backend/internal/upload"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

func invalidCoordinates() *apperr.Error {
	return apperr.Validation(apperr.CodeInvalidCoordinates, models.ErrInvalidCoords.Error())
}

// ListPostes handles listing poles page by page, photos included.
// @Summary List poles
// @Tags postes
// @Produce json
// @Param page query int false "Page, starting at 1"
// @Param limit query int false "Page size, at most 100"
// @Success 200 {object} models.Response
// @Router /api/listar-postes [get]
func (h *Handler) ListPostes(c *gin.Context) {
	page, err := queryInt(c, "page", defaultPage)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit", defaultLimit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	ctx := c.Request.Context()
	cached, gen, ok := h.cache.GetPostePage(ctx, page, limit)
	if ok {
		h.logger.Debug("Returning cached pole page", zap.Int("page", page), zap.Int("limit", limit))
		h.respondPage(c, page, limit, cached)
		return
	}

	var result cache.PostePage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		postes, err := h.postes.List(gctx, limit, (page-1)*limit)
		result.Postes = postes
		return err
	})
	g.Go(func() error {
		total, err := h.postes.Count(gctx)
		result.Total = total
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(c, apperr.Internal(err))
		return
	}
	if result.Postes == nil {
		result.Postes = []models.Poste{}
	}

	_ = h.cache.SetPostePage(ctx, gen, page, limit, &result)
	h.respondPage(c, page, limit, &result)
}

func (h *Handler) respondPage(c *gin.Context, page, limit int, p *cache.PostePage) {
	c.JSON(http.StatusOK, models.Response{
		Success:    true,
		Data:       p.Postes,
		Pagination: models.NewPagination(page, limit, p.Total),
	})
}

// CountPostes handles counting poles.
// @Summary Count poles
// @Tags postes
// @Produce json
// @Success 200 {object} models.Response
// @Router /api/count-postes [get]
func (h *Handler) CountPostes(c *gin.Context) {
	ctx := c.Request.Context()
	n, gen, ok := h.cache.GetCount(ctx, cache.KeyPosteCount)
	if ok {
		c.JSON(http.StatusOK, models.Count(n))
		return
	}

	n, err := h.postes.Count(ctx)
	if err != nil {
		h.fail(c, apperr.Internal(err))
		return
	}
	_ = h.cache.SetCount(ctx, cache.KeyPosteCount, gen, n)

	c.JSON(http.StatusOK, models.Count(n))
}

// CreatePoste handles registering a pole with its photos.
// Photos are persisted by the upload middleware before this runs, so every
// failure path removes them again.
// @Summary Create pole
// @Tags postes
// @Accept multipart/form-data
// @Produce json
// @Param fotos formData file false "Photos (JPEG or PNG, up to 10)"
// @Success 201 {object} models.Response
// @Failure 400 {object} apperr.Envelope
// @Failure 404 {object} apperr.Envelope
// @Router /api/postes [post]
func (h *Handler) CreatePoste(c *gin.Context) {
	ctx := c.Request.Context()
	files := upload.FilesFrom(c)
	fail := func(err error) {
		h.uploads.Cleanup(ctx, upload.URLs(files))
		h.fail(c, err)
	}

	var req models.CreatePosteRequest
	if err := c.ShouldBindWith(&req, binding.Form); err != nil {
		fail(invalidBody(err))
		return
	}

	req.NumeroIdentificacao = strings.TrimSpace(req.NumeroIdentificacao)
	req.Cidade = strings.TrimSpace(req.Cidade)
	req.Endereco = strings.TrimSpace(req.Endereco)
	req.Numero = strings.TrimSpace(req.Numero)
	req.UsuarioID = strings.TrimSpace(req.UsuarioID)
	req.Coords = strings.TrimSpace(req.Coords)

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"cidade", req.Cidade},
		{"endereco", req.Endereco},
		{"numero", req.Numero},
		{"usuarioId", req.UsuarioID},
		{"numeroIdentificacao", req.NumeroIdentificacao},
		{"coords", req.Coords},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		fail(apperr.MissingFields(missing))
		return
	}

	if !models.ValidIdentificacao(req.NumeroIdentificacao) {
		fail(apperr.Validation(apperr.CodeInvalidIdentification,
			"numeroIdentificacao must be five digits, a dash and one digit (00000-0)"))
		return
	}

	lat, lon, err := models.ParseCoords(req.Coords)
	if err != nil {
		fail(invalidCoordinates())
		return
	}

	if _, err := h.users.GetByID(ctx, req.UsuarioID); err != nil {
		fail(storeError(err, "usuario"))
		return
	}

	poste := &models.Poste{
		NumeroIdentificacao: req.NumeroIdentificacao,
		Latitude:            lat,
		Longitude:           lon,
		Cidade:              req.Cidade,
		Endereco:            req.Endereco,
		Numero:              req.Numero,
		Atributos:           req.Atributos,
		UsuarioID:           &req.UsuarioID,
		Fotos:               make([]models.Foto, 0, len(files)),
	}
	if cep := strings.TrimSpace(req.Cep); cep != "" {
		poste.Cep = &cep
	}
	for _, f := range files {
		poste.Fotos = append(poste.Fotos, f.Foto(lat, lon))
	}

	created, err := h.postes.Create(ctx, poste)
	if err != nil {
		fail(storeError(err, "poste"))
		return
	}

	h.invalidatePostes(c)
	c.JSON(http.StatusCreated, models.OK(created))
}

// UpdateLocation handles moving a pole.
// @Summary Update pole location
// @Tags postes
// @Accept json
// @Produce json
// @Param id path string true "Pole ID"
// @Param location body models.UpdateLocationRequest true "New coordinates"
// @Success 200 {object} models.Response
// @Failure 400 {object} apperr.Envelope
// @Failure 404 {object} apperr.Envelope
// @Router /api/postes/{id}/location [patch]
func (h *Handler) UpdateLocation(c *gin.Context) {
	id := c.Param("id")

	var req models.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalidBody(err))
		return
	}

	var lat, lon float64
	switch {
	case req.Latitude != nil && req.Longitude != nil:
		lat, lon = *req.Latitude, *req.Longitude
	case len(req.Coords) == 2:
		lat, lon = req.Coords[0], req.Coords[1]
	case len(req.Coords) > 0:
		h.fail(c, invalidCoordinates())
		return
	default:
		var missing []string
		if req.Latitude == nil {
			missing = append(missing, "latitude")
		}
		if req.Longitude == nil {
			missing = append(missing, "longitude")
		}
		h.fail(c, apperr.MissingFields(missing))
		return
	}
	if !models.ValidCoordinates(lat, lon) {
		h.fail(c, invalidCoordinates())
		return
	}

	poste, err := h.postes.UpdateLocation(c.Request.Context(), id, lat, lon)
	if err != nil {
		h.fail(c, storeError(err, "poste"))
		return
	}

	h.invalidatePostes(c)
	c.JSON(http.StatusOK, models.OK(poste))
}

func (h *Handler) invalidatePostes(c *gin.Context) {
	if err := h.cache.InvalidatePostes(c.Request.Context()); err != nil {
		h.logger.Warn("Failed to invalidate pole cache", zap.Error(err))
	}
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(apperr.CodeValidation, key+" must be an integer").With("field", key)
	}
	return n, nil
}
